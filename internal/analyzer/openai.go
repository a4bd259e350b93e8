package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"ats-optimizer/internal/common/errors"
	"ats-optimizer/internal/common/logging"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	requestTimeout = 60 * time.Second
)

const systemPromptFR = `Tu es un expert en analyse ATS (Applicant Tracking System) specialise dans le marche de l'emploi francais.
Tu analyses la compatibilite entre un CV et une offre d'emploi pour aider les candidats a optimiser leur CV.
IMPORTANT: Les ATS rejettent automatiquement ~75% des candidatures. Ton role est d'aider les candidats a passer ces filtres.
Reponds UNIQUEMENT avec un objet JSON valide, sans texte avant ou apres.`

const systemPromptEN = `You are an expert ATS (Applicant Tracking System) analyzer specialized in resume optimization.
You analyze the compatibility between a resume and a job description to help candidates improve their chances.
IMPORTANT: ATS systems automatically reject ~75% of applications. Your role is to help candidates pass these filters.
Respond ONLY with a valid JSON object, no text before or after.`

const userPromptFR = `Analyse ce CV par rapport a cette offre d'emploi.

CV DU CANDIDAT:
%s

OFFRE D'EMPLOI:
%s

Retourne un JSON avec cette structure exacte:
{
  "ats_score": <entier 0-100, score de correspondance global>,
  "matching_keywords": [<liste des mots-cles importants presents dans le CV ET l'offre>],
  "missing_keywords": [<liste des mots-cles importants de l'offre ABSENTS du CV>],
  "strengths": [<points forts du candidat pour ce poste specifique, 3-5 items>],
  "improvements": [<ameliorations concretes et actionnables, 3-5 items>],
  "suggestions": [
    {
      "section": "<une valeur parmi: titre, experience, competences, formation, resume>",
      "issue": "<probleme identifie dans cette section>",
      "suggestion": "<reecriture ou amelioration concrete et detaillee>"
    }
  ],
  "summary": "<evaluation globale concise en 2-3 phrases>"
}`

const userPromptEN = `Analyze this resume against the job description.

CANDIDATE RESUME:
%s

JOB DESCRIPTION:
%s

Return a JSON with this exact structure:
{
  "ats_score": <integer 0-100, overall match score>,
  "matching_keywords": [<important keywords present in BOTH resume and job>],
  "missing_keywords": [<important job keywords MISSING from resume>],
  "strengths": [<candidate strengths for this specific position, 3-5 items>],
  "improvements": [<concrete and actionable improvements, 3-5 items>],
  "suggestions": [
    {
      "section": "<one of: title, experience, skills, education, summary>",
      "issue": "<identified issue in this section>",
      "suggestion": "<concrete and detailed rewrite or improvement>"
    }
  ],
  "summary": "<concise overall assessment in 2-3 sentences>"
}`

// OpenAIAnalyzer scores CVs through the OpenAI chat completions API. Calls
// run behind a circuit breaker so a provider outage sheds load fast instead
// of stacking up sixty-second timeouts.
type OpenAIAnalyzer struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  logging.Logger
}

type Option func(*OpenAIAnalyzer)

// WithBaseURL overrides the API endpoint, used by tests.
func WithBaseURL(url string) Option {
	return func(a *OpenAIAnalyzer) {
		a.baseURL = url
	}
}

func NewOpenAIAnalyzer(apiKey, model string, opts ...Option) (*OpenAIAnalyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	logger := logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "analyzer"})

	a := &OpenAIAnalyzer{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: requestTimeout},
		logger:  logger,
	}

	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openai",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				logging.Field{Key: "breaker", Value: name},
				logging.Field{Key: "from", Value: from.String()},
				logging.Field{Key: "to", Value: to.String()})
		},
	})

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Analyze runs one scoring call. The model is instructed to reply with a
// JSON object matching Result; a reply without a numeric score is treated as
// a provider failure.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, cvText, jobDescription, language string) (*Result, error) {
	systemPrompt := systemPromptEN
	userPrompt := fmt.Sprintf(userPromptEN, cvText, jobDescription)
	if language == "fr" {
		systemPrompt = systemPromptFR
		userPrompt = fmt.Sprintf(userPromptFR, cvText, jobDescription)
	}

	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.complete(ctx, systemPrompt, userPrompt)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errors.InternalError("analysis service is temporarily unavailable", err)
		}
		return nil, err
	}

	return result.(*Result), nil
}

func (a *OpenAIAnalyzer) complete(ctx context.Context, systemPrompt, userPrompt string) (*Result, error) {
	reqBody := chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.2,
		MaxTokens:   2000,
	}
	reqBody.ResponseFormat.Type = "json_object"

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.InternalError("failed to encode analysis request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.InternalError("failed to build analysis request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errors.InternalError("analysis request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.InternalError("failed to read analysis response", err)
	}

	if resp.StatusCode != http.StatusOK {
		a.logger.Error("analysis provider returned an error", nil,
			logging.Field{Key: "status", Value: resp.StatusCode})
		return nil, errors.InternalError(
			fmt.Sprintf("analysis provider returned status %d", resp.StatusCode), nil)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, errors.InternalError("failed to decode analysis response", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, errors.InternalError("analysis response contained no choices", nil)
	}

	var result Result
	if err := json.Unmarshal([]byte(chatResp.Choices[0].Message.Content), &result); err != nil {
		return nil, errors.InternalError("invalid analysis result format", err)
	}
	if result.ATSScore < 0 || result.ATSScore > 100 {
		return nil, errors.InternalError("analysis result score out of range", nil)
	}

	result.TokensUsed = chatResp.Usage.TotalTokens
	return &result, nil
}

var _ Analyzer = (*OpenAIAnalyzer)(nil)
