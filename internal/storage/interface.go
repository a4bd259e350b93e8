package storage

import (
	"context"
	"encoding/json"
	"time"
)

// User is an account that authenticates with email and password and consumes
// quota through the browser session path.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Plan           string    `json:"plan"`
	UsedThisMonth  int       `json:"used_this_month"`
	LastResetAt    time.Time `json:"last_reset_at"`
	TrialExpiresAt time.Time `json:"trial_expires_at,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// APIKey is a programmatic credential. Only the SHA-256 hash of the secret is
// stored; Prefix keeps the first characters for display in key listings.
type APIKey struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Name          string     `json:"name"`
	KeyHash       string     `json:"-"`
	Prefix        string     `json:"prefix"`
	Plan          string     `json:"plan"`
	MonthlyQuota  int        `json:"monthly_quota"`
	UsedThisMonth int        `json:"used_this_month"`
	LastResetAt   time.Time  `json:"last_reset_at"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
}

// ResetToken is a single-use password reset credential. Only the SHA-256 hash
// of the secret is stored.
type ResetToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

// Analysis is one persisted analysis run.
type Analysis struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	APIKeyID   string          `json:"api_key_id,omitempty"`
	Language   string          `json:"language"`
	Score      int             `json:"ats_score"`
	Result     json.RawMessage `json:"result"`
	TokensUsed int             `json:"tokens_used"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AnalysisSummary is the listing shape for history queries. The full result
// payload is omitted; only its summary text is surfaced.
type AnalysisSummary struct {
	ID         string    `json:"id"`
	Language   string    `json:"language"`
	Score      int       `json:"ats_score"`
	Summary    string    `json:"summary"`
	TokensUsed int       `json:"tokens_used"`
	CreatedAt  time.Time `json:"created_at"`
}

// Storage defines the persistence interface for accounts, API keys, reset
// tokens and analysis history.
type Storage interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	UpdateUserPlan(ctx context.Context, id, plan string) error
	ResetUserMonthlyUsage(ctx context.Context, id string, resetAt time.Time) error
	IncrementUserUsage(ctx context.Context, id string) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	DeleteUserAccount(ctx context.Context, id string) error

	// API keys
	CreateAPIKey(ctx context.Context, key *APIKey) error
	ListAPIKeys(ctx context.Context, userID string) ([]*APIKey, error)
	DeactivateAPIKey(ctx context.Context, userID, keyID string) error
	GetActiveKeyByHash(ctx context.Context, keyHash string) (*APIKey, error)

	// AdmitAPIKey atomically charges one unit against the key identified by
	// keyHash, rolling the window over when the stored month differs from the
	// current one. It returns the post-charge key row, or nil when the key is
	// over quota for the current month.
	AdmitAPIKey(ctx context.Context, keyHash string) (*APIKey, error)

	// Password reset tokens
	InvalidateResetTokens(ctx context.Context, userID string) error
	CreateResetToken(ctx context.Context, token *ResetToken) error

	// ConsumeResetToken marks the unexpired, unused token matching tokenHash
	// as used and updates the owning user's password hash, all in one
	// transaction. It returns NotFound when no such token exists.
	ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string) error

	// Analyses
	SaveAnalysis(ctx context.Context, analysis *Analysis) error
	ListAnalyses(ctx context.Context, userID string, limit int) ([]*AnalysisSummary, error)

	Close() error
	Health() error
}
