package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ats-optimizer/internal/common/errors"
	"ats-optimizer/internal/storage"
)

// Adapter implements storage.Storage on PostgreSQL.
type Adapter struct {
	pool *pgxpool.Pool
}

func NewAdapter(ctx context.Context, databaseURL string) (*Adapter, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database url is required")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	adapter := &Adapter{pool: pool}

	if err := adapter.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return adapter, nil
}

func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}

func (a *Adapter) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.pool.Ping(ctx)
}

func (a *Adapter) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			plan VARCHAR(50) NOT NULL DEFAULT 'trial',
			used_this_month INTEGER NOT NULL DEFAULT 0,
			last_reset_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			trial_expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS api_keys (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			key_hash VARCHAR(64) NOT NULL UNIQUE,
			prefix VARCHAR(20) NOT NULL,
			plan VARCHAR(50) NOT NULL,
			monthly_quota INTEGER NOT NULL,
			used_this_month INTEGER NOT NULL DEFAULT 0,
			last_reset_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_used_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS reset_tokens (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
			token_hash VARCHAR(64) NOT NULL UNIQUE,
			expires_at TIMESTAMPTZ NOT NULL,
			used BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS analyses (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
			api_key_id UUID REFERENCES api_keys (id) ON DELETE SET NULL,
			language VARCHAR(5) NOT NULL,
			ats_score INTEGER NOT NULL,
			result JSONB NOT NULL,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_api_keys_user_id ON api_keys(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reset_tokens_user_id ON reset_tokens(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_user_created ON analyses(user_id, created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := a.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}

	return nil
}

// mapError translates driver errors into the application taxonomy.
func mapError(err error, resource string) error {
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFoundError(resource)
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errors.ConflictError(fmt.Sprintf("%s already exists", resource))
	}
	return errors.InternalError(fmt.Sprintf("database operation failed for %s", resource), err)
}

// User operations

func (a *Adapter) CreateUser(ctx context.Context, user *storage.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if user.LastResetAt.IsZero() {
		user.LastResetAt = user.CreatedAt
	}

	var trialExpires *time.Time
	if !user.TrialExpiresAt.IsZero() {
		trialExpires = &user.TrialExpiresAt
	}

	_, err := a.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, plan, used_this_month, last_reset_at, trial_expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Email, user.PasswordHash, user.Plan,
		user.UsedThisMonth, user.LastResetAt, trialExpires, user.CreatedAt)
	if err != nil {
		return mapError(err, "account")
	}
	return nil
}

const userColumns = `id, email, password_hash, plan, used_this_month, last_reset_at, trial_expires_at, created_at`

func scanUser(row pgx.Row) (*storage.User, error) {
	var user storage.User
	var trialExpires *time.Time
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Plan,
		&user.UsedThisMonth, &user.LastResetAt, &trialExpires, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	if trialExpires != nil {
		user.TrialExpiresAt = *trialExpires
	}
	return &user, nil
}

func (a *Adapter) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	user, err := scanUser(a.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, mapError(err, "account")
	}
	return user, nil
}

func (a *Adapter) GetUserByID(ctx context.Context, id string) (*storage.User, error) {
	user, err := scanUser(a.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "account")
	}
	return user, nil
}

func (a *Adapter) UpdateUserPlan(ctx context.Context, id, plan string) error {
	tag, err := a.pool.Exec(ctx, `UPDATE users SET plan = $2 WHERE id = $1`, id, plan)
	if err != nil {
		return mapError(err, "account")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundError("account")
	}
	return nil
}

func (a *Adapter) ResetUserMonthlyUsage(ctx context.Context, id string, resetAt time.Time) error {
	tag, err := a.pool.Exec(ctx,
		`UPDATE users SET used_this_month = 0, last_reset_at = $2 WHERE id = $1`, id, resetAt)
	if err != nil {
		return mapError(err, "account")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundError("account")
	}
	return nil
}

func (a *Adapter) IncrementUserUsage(ctx context.Context, id string) error {
	tag, err := a.pool.Exec(ctx,
		`UPDATE users SET used_this_month = used_this_month + 1 WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "account")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundError("account")
	}
	return nil
}

func (a *Adapter) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	tag, err := a.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return mapError(err, "account")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundError("account")
	}
	return nil
}

// DeleteUserAccount removes the user row; keys, reset tokens and analyses
// follow through ON DELETE CASCADE.
func (a *Adapter) DeleteUserAccount(ctx context.Context, id string) error {
	tag, err := a.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "account")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundError("account")
	}
	return nil
}

// API key operations

func (a *Adapter) CreateAPIKey(ctx context.Context, key *storage.APIKey) error {
	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now()
	}
	if key.LastResetAt.IsZero() {
		key.LastResetAt = key.CreatedAt
	}

	_, err := a.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, prefix, plan, monthly_quota, used_this_month, last_reset_at, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.Prefix, key.Plan,
		key.MonthlyQuota, key.UsedThisMonth, key.LastResetAt, key.IsActive, key.CreatedAt)
	if err != nil {
		return mapError(err, "api key")
	}
	return nil
}

const keyColumns = `id, user_id, name, key_hash, prefix, plan, monthly_quota, used_this_month, last_reset_at, is_active, created_at, last_used_at`

func scanAPIKey(row pgx.Row) (*storage.APIKey, error) {
	var key storage.APIKey
	err := row.Scan(&key.ID, &key.UserID, &key.Name, &key.KeyHash, &key.Prefix,
		&key.Plan, &key.MonthlyQuota, &key.UsedThisMonth, &key.LastResetAt,
		&key.IsActive, &key.CreatedAt, &key.LastUsedAt)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (a *Adapter) ListAPIKeys(ctx context.Context, userID string) ([]*storage.APIKey, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, mapError(err, "api key")
	}
	defer rows.Close()

	var keys []*storage.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, mapError(err, "api key")
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "api key")
	}
	return keys, nil
}

func (a *Adapter) DeactivateAPIKey(ctx context.Context, userID, keyID string) error {
	tag, err := a.pool.Exec(ctx,
		`UPDATE api_keys SET is_active = false WHERE id = $1 AND user_id = $2`, keyID, userID)
	if err != nil {
		return mapError(err, "api key")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundError("api key")
	}
	return nil
}

func (a *Adapter) GetActiveKeyByHash(ctx context.Context, keyHash string) (*storage.APIKey, error) {
	key, err := scanAPIKey(a.pool.QueryRow(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE key_hash = $1 AND is_active = true`, keyHash))
	if err != nil {
		return nil, mapError(err, "api key")
	}
	return key, nil
}

// AdmitAPIKey charges one unit in a single conditional update. The WHERE
// clause admits when the quota is unlimited, when the stored window belongs
// to an earlier month, or when the current count is under quota; the CASE
// expressions fold the month rollover into the same statement. Zero rows
// back means the key is over quota, reported as a nil key.
func (a *Adapter) AdmitAPIKey(ctx context.Context, keyHash string) (*storage.APIKey, error) {
	key, err := scanAPIKey(a.pool.QueryRow(ctx,
		`UPDATE api_keys SET
			used_this_month = CASE
				WHEN date_trunc('month', last_reset_at) <> date_trunc('month', now()) THEN 1
				ELSE used_this_month + 1
			END,
			last_reset_at = CASE
				WHEN date_trunc('month', last_reset_at) <> date_trunc('month', now()) THEN now()
				ELSE last_reset_at
			END,
			last_used_at = now()
		WHERE key_hash = $1
			AND is_active = true
			AND (
				monthly_quota = -1
				OR date_trunc('month', last_reset_at) <> date_trunc('month', now())
				OR used_this_month < monthly_quota
			)
		RETURNING `+keyColumns, keyHash))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError(err, "api key")
	}
	return key, nil
}

// Password reset tokens

func (a *Adapter) InvalidateResetTokens(ctx context.Context, userID string) error {
	_, err := a.pool.Exec(ctx,
		`UPDATE reset_tokens SET used = true WHERE user_id = $1 AND used = false`, userID)
	if err != nil {
		return mapError(err, "reset token")
	}
	return nil
}

func (a *Adapter) CreateResetToken(ctx context.Context, token *storage.ResetToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	_, err := a.pool.Exec(ctx,
		`INSERT INTO reset_tokens (id, user_id, token_hash, expires_at, used, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		token.ID, token.UserID, token.TokenHash, token.ExpiresAt, token.Used, token.CreatedAt)
	if err != nil {
		return mapError(err, "reset token")
	}
	return nil
}

// ConsumeResetToken burns the token and rewrites the password in one
// transaction, so a token can never update a password twice.
func (a *Adapter) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return mapError(err, "reset token")
	}
	defer tx.Rollback(ctx)

	var userID string
	err = tx.QueryRow(ctx,
		`UPDATE reset_tokens SET used = true
		 WHERE token_hash = $1 AND used = false AND expires_at > now()
		 RETURNING user_id`, tokenHash).Scan(&userID)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return errors.NotFoundError("reset token")
		}
		return mapError(err, "reset token")
	}

	tag, err := tx.Exec(ctx,
		`UPDATE users SET password_hash = $2 WHERE id = $1`, userID, passwordHash)
	if err != nil {
		return mapError(err, "account")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundError("account")
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError(err, "reset token")
	}
	return nil
}

// Analyses

func (a *Adapter) SaveAnalysis(ctx context.Context, analysis *storage.Analysis) error {
	if analysis.ID == "" {
		analysis.ID = uuid.NewString()
	}
	if analysis.CreatedAt.IsZero() {
		analysis.CreatedAt = time.Now()
	}

	var apiKeyID *string
	if analysis.APIKeyID != "" {
		apiKeyID = &analysis.APIKeyID
	}

	_, err := a.pool.Exec(ctx,
		`INSERT INTO analyses (id, user_id, api_key_id, language, ats_score, result, tokens_used, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		analysis.ID, analysis.UserID, apiKeyID, analysis.Language, analysis.Score,
		analysis.Result, analysis.TokensUsed, analysis.CreatedAt)
	if err != nil {
		return mapError(err, "analysis")
	}
	return nil
}

func (a *Adapter) ListAnalyses(ctx context.Context, userID string, limit int) ([]*storage.AnalysisSummary, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT id, language, ats_score, COALESCE(result->>'summary', ''), tokens_used, created_at
		 FROM analyses WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, mapError(err, "analysis")
	}
	defer rows.Close()

	var summaries []*storage.AnalysisSummary
	for rows.Next() {
		var s storage.AnalysisSummary
		if err := rows.Scan(&s.ID, &s.Language, &s.Score, &s.Summary, &s.TokensUsed, &s.CreatedAt); err != nil {
			return nil, mapError(err, "analysis")
		}
		summaries = append(summaries, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "analysis")
	}
	return summaries, nil
}

var _ storage.Storage = (*Adapter)(nil)
