package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"ats-optimizer/internal/auth"
	"ats-optimizer/internal/common/errors"
	"ats-optimizer/internal/common/logging"
	"ats-optimizer/internal/extract"
	"ats-optimizer/internal/quota"
	"ats-optimizer/internal/storage"
)

const (
	minCVChars        = 100
	minJobChars       = 50
	historyLimit      = 20
	defaultLanguage   = "fr"
	multipartMemLimit = 8 << 20
)

type analyzeInput struct {
	cvText         string
	jobDescription string
	language       string
}

// parseAnalyzeInput accepts either a JSON body or multipart form data with an
// optional cv_file PDF upload.
func (h *Handlers) parseAnalyzeInput(r *http.Request) (*analyzeInput, error) {
	in := &analyzeInput{language: defaultLanguage}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(multipartMemLimit); err != nil {
			return nil, errors.ValidationError("Invalid multipart form data.")
		}
		in.cvText = r.FormValue("cv_text")
		in.jobDescription = r.FormValue("job_description")
		if lang := r.FormValue("language"); lang != "" {
			in.language = lang
		}

		file, header, err := r.FormFile("cv_file")
		if err == nil {
			defer file.Close()
			if header.Size > extract.MaxUploadBytes {
				return nil, errors.ValidationError("PDF file exceeds the 5MB limit")
			}
			data, err := io.ReadAll(io.LimitReader(file, extract.MaxUploadBytes+1))
			if err != nil {
				return nil, errors.InternalError("failed to read uploaded file", err)
			}
			text, err := extract.PDFText(data)
			if err != nil {
				return nil, err
			}
			in.cvText = text
		}
	} else {
		var req struct {
			CVText         string `json:"cv_text"`
			JobDescription string `json:"job_description"`
			Language       string `json:"language"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, errors.ValidationError("Invalid JSON body.")
		}
		in.cvText = req.CVText
		in.jobDescription = req.JobDescription
		if req.Language != "" {
			in.language = req.Language
		}
	}

	if in.language != "fr" && in.language != "en" {
		return nil, errors.ValidationError("Language must be 'fr' or 'en'.")
	}

	in.cvText = strings.TrimSpace(in.cvText)
	in.jobDescription = strings.TrimSpace(in.jobDescription)

	if len(in.cvText) < minCVChars {
		return nil, errors.ValidationError("CV text must be at least 100 characters. Upload a PDF or paste the text.")
	}
	if len(in.jobDescription) < minJobChars {
		return nil, errors.ValidationError("Job description must be at least 50 characters.")
	}

	return in, nil
}

// Analyze runs one metered analysis
// @Summary Analyze a CV against a job description
// @Description Scores the CV against the job description. Accepts a session cookie or an API key bearer credential; each successful call consumes one quota unit.
// @Tags analyze
// @Accept json
// @Accept multipart/form-data
// @Produce json
// @Security SessionAuth
// @Security APIKeyAuth
// @Param cv_text formData string false "CV text (min 100 chars, alternative to cv_file)"
// @Param cv_file formData file false "CV as PDF (max 5MB)"
// @Param job_description formData string true "Job description (min 50 chars)"
// @Param language formData string false "Analysis language, fr or en" default(fr)
// @Success 200 {object} analyzer.Result "Analysis result"
// @Failure 400 {string} string "Invalid input"
// @Failure 401 {string} string "Authentication required"
// @Failure 429 {string} string "Quota exceeded or rate limited"
// @Router /v1/analyze [post]
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	identity, err := h.resolver.Resolve(r.Context(), r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	// The api_key path charged its unit during resolution. The session path
	// is admitted here and charged after the work succeeds.
	if identity.Source == auth.SourceSession {
		if _, err := h.ledger.Admit(r.Context(), identity.UserID); err != nil {
			h.respondError(w, err)
			return
		}
	}

	in, err := h.parseAnalyzeInput(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), in.cvText, in.jobDescription, in.language)
	if err != nil {
		h.respondError(w, err)
		return
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		h.respondError(w, errors.InternalError("failed to encode analysis result", err))
		return
	}

	analysis := &storage.Analysis{
		UserID:     identity.UserID,
		Language:   in.language,
		Score:      result.ATSScore,
		Result:     resultJSON,
		TokensUsed: result.TokensUsed,
	}
	if identity.Key != nil {
		analysis.APIKeyID = identity.Key.ID
	}
	if err := h.storage.SaveAnalysis(r.Context(), analysis); err != nil {
		// The analysis succeeded; losing the history row is not worth
		// failing the request over.
		h.logger.Error("failed to persist analysis", err,
			logging.Field{Key: "user_id", Value: identity.UserID})
	}

	if identity.Source == auth.SourceSession {
		if err := h.ledger.Commit(r.Context(), identity.UserID); err != nil {
			h.logger.Error("failed to commit quota usage", err,
				logging.Field{Key: "user_id", Value: identity.UserID})
		}
	}

	body := map[string]interface{}{
		"id":                analysis.ID,
		"created_at":        analysis.CreatedAt,
		"ats_score":         result.ATSScore,
		"matching_keywords": result.MatchingKeywords,
		"missing_keywords":  result.MissingKeywords,
		"strengths":         result.Strengths,
		"improvements":      result.Improvements,
		"suggestions":       result.Suggestions,
		"summary":           result.Summary,
		"tokens_used":       result.TokensUsed,
	}
	if identity.Key != nil {
		body["quota_remaining"] = keyRemaining(identity.Key)
	}

	h.respondJSON(w, http.StatusOK, body)
}

// keyRemaining computes the allowance left on a key from its post-charge
// counters.
func keyRemaining(key *storage.APIKey) int {
	if key.MonthlyQuota == quota.Unlimited {
		return quota.Unlimited
	}
	if remaining := key.MonthlyQuota - key.UsedThisMonth; remaining > 0 {
		return remaining
	}
	return 0
}

// History lists recent analyses
// @Summary Get the last 20 analyses
// @Description Returns the most recent analyses for the current account, newest first
// @Tags analyze
// @Produce json
// @Security SessionAuth
// @Success 200 {array} storage.AnalysisSummary "Recent analyses"
// @Failure 401 {string} string "Authentication required"
// @Router /v1/analyze/history [get]
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.respondError(w, errors.UnauthenticatedError("Authentication required"))
		return
	}

	summaries, err := h.storage.ListAnalyses(r.Context(), claims.Subject, historyLimit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if summaries == nil {
		summaries = []*storage.AnalysisSummary{}
	}

	h.respondJSON(w, http.StatusOK, summaries)
}
