package main

import (
	"os"

	"ats-optimizer/internal/app"
)

// @title CV ATS Optimizer API
// @version 1.0.0
// @description API-first CV/ATS optimization tool. Analyze resumes against job descriptions.
// @BasePath /

// @securityDefinitions.apikey APIKeyAuth
// @in header
// @name Authorization
// @description API key as "Bearer sk-ats-..."

// @securityDefinitions.apikey SessionAuth
// @in cookie
// @name session
// @description Session cookie set by /v1/auth/login

func main() {
	if err := app.Run(); err != nil {
		os.Exit(1)
	}
}
