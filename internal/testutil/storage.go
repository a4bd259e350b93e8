// Package testutil provides in-memory fakes for package tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ats-optimizer/internal/common/errors"
	"ats-optimizer/internal/storage"
)

// MemoryStorage is an in-memory storage.Storage for tests. AdmitAPIKey holds
// the same atomicity contract as the database implementation: the check and
// the charge happen under one lock.
type MemoryStorage struct {
	mu       sync.Mutex
	users    map[string]*storage.User
	keys     map[string]*storage.APIKey
	tokens   map[string]*storage.ResetToken
	analyses map[string]*storage.Analysis

	// Now is replaceable to cross month boundaries in admission tests
	Now func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:    make(map[string]*storage.User),
		keys:     make(map[string]*storage.APIKey),
		tokens:   make(map[string]*storage.ResetToken),
		analyses: make(map[string]*storage.Analysis),
		Now:      time.Now,
	}
}

func copyUser(u *storage.User) *storage.User {
	c := *u
	return &c
}

func copyKey(k *storage.APIKey) *storage.APIKey {
	c := *k
	if k.LastUsedAt != nil {
		t := *k.LastUsedAt
		c.LastUsedAt = &t
	}
	return &c
}

func (m *MemoryStorage) CreateUser(ctx context.Context, user *storage.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Email == user.Email {
			return errors.ConflictError("account already exists")
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = m.Now()
	}
	if user.LastResetAt.IsZero() {
		user.LastResetAt = user.CreatedAt
	}
	m.users[user.ID] = copyUser(user)
	return nil
}

func (m *MemoryStorage) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if user.Email == email {
			return copyUser(user), nil
		}
	}
	return nil, errors.NotFoundError("account")
}

func (m *MemoryStorage) GetUserByID(ctx context.Context, id string) (*storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return nil, errors.NotFoundError("account")
	}
	return copyUser(user), nil
}

func (m *MemoryStorage) UpdateUserPlan(ctx context.Context, id, plan string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return errors.NotFoundError("account")
	}
	user.Plan = plan
	return nil
}

func (m *MemoryStorage) ResetUserMonthlyUsage(ctx context.Context, id string, resetAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return errors.NotFoundError("account")
	}
	user.UsedThisMonth = 0
	user.LastResetAt = resetAt
	return nil
}

func (m *MemoryStorage) IncrementUserUsage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return errors.NotFoundError("account")
	}
	user.UsedThisMonth++
	return nil
}

func (m *MemoryStorage) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return errors.NotFoundError("account")
	}
	user.PasswordHash = passwordHash
	return nil
}

func (m *MemoryStorage) DeleteUserAccount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return errors.NotFoundError("account")
	}
	delete(m.users, id)
	for keyID, key := range m.keys {
		if key.UserID == id {
			delete(m.keys, keyID)
		}
	}
	for tokenID, token := range m.tokens {
		if token.UserID == id {
			delete(m.tokens, tokenID)
		}
	}
	for analysisID, analysis := range m.analyses {
		if analysis.UserID == id {
			delete(m.analyses, analysisID)
		}
	}
	return nil
}

func (m *MemoryStorage) CreateAPIKey(ctx context.Context, key *storage.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = m.Now()
	}
	if key.LastResetAt.IsZero() {
		key.LastResetAt = key.CreatedAt
	}
	m.keys[key.ID] = copyKey(key)
	return nil
}

func (m *MemoryStorage) ListAPIKeys(ctx context.Context, userID string) ([]*storage.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []*storage.APIKey
	for _, key := range m.keys {
		if key.UserID == userID {
			keys = append(keys, copyKey(key))
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
	return keys, nil
}

func (m *MemoryStorage) DeactivateAPIKey(ctx context.Context, userID, keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.keys[keyID]
	if !ok || key.UserID != userID {
		return errors.NotFoundError("api key")
	}
	key.IsActive = false
	return nil
}

func (m *MemoryStorage) GetActiveKeyByHash(ctx context.Context, keyHash string) (*storage.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range m.keys {
		if key.KeyHash == keyHash && key.IsActive {
			return copyKey(key), nil
		}
	}
	return nil, errors.NotFoundError("api key")
}

func sameMonth(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month()
}

func (m *MemoryStorage) AdmitAPIKey(ctx context.Context, keyHash string) (*storage.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	for _, key := range m.keys {
		if key.KeyHash != keyHash || !key.IsActive {
			continue
		}

		rolled := !sameMonth(key.LastResetAt, now)
		if key.MonthlyQuota != -1 && !rolled && key.UsedThisMonth >= key.MonthlyQuota {
			return nil, nil
		}

		if rolled {
			key.UsedThisMonth = 1
			key.LastResetAt = now
		} else {
			key.UsedThisMonth++
		}
		key.LastUsedAt = &now
		return copyKey(key), nil
	}
	return nil, errors.NotFoundError("api key")
}

func (m *MemoryStorage) InvalidateResetTokens(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, token := range m.tokens {
		if token.UserID == userID && !token.Used {
			token.Used = true
		}
	}
	return nil
}

func (m *MemoryStorage) CreateResetToken(ctx context.Context, token *storage.ResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = m.Now()
	}
	c := *token
	m.tokens[token.ID] = &c
	return nil
}

func (m *MemoryStorage) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	for _, token := range m.tokens {
		if token.TokenHash != tokenHash || token.Used || now.After(token.ExpiresAt) {
			continue
		}
		user, ok := m.users[token.UserID]
		if !ok {
			return errors.NotFoundError("account")
		}
		token.Used = true
		user.PasswordHash = passwordHash
		return nil
	}
	return errors.NotFoundError("reset token")
}

func (m *MemoryStorage) SaveAnalysis(ctx context.Context, analysis *storage.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if analysis.ID == "" {
		analysis.ID = uuid.NewString()
	}
	if analysis.CreatedAt.IsZero() {
		analysis.CreatedAt = m.Now()
	}
	c := *analysis
	m.analyses[analysis.ID] = &c
	return nil
}

func (m *MemoryStorage) ListAnalyses(ctx context.Context, userID string, limit int) ([]*storage.AnalysisSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*storage.Analysis
	for _, analysis := range m.analyses {
		if analysis.UserID == userID {
			all = append(all, analysis)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	var summaries []*storage.AnalysisSummary
	for i, analysis := range all {
		if i >= limit {
			break
		}
		summaries = append(summaries, &storage.AnalysisSummary{
			ID:         analysis.ID,
			Language:   analysis.Language,
			Score:      analysis.Score,
			TokensUsed: analysis.TokensUsed,
			CreatedAt:  analysis.CreatedAt,
		})
	}
	return summaries, nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

func (m *MemoryStorage) Health() error {
	return nil
}

var _ storage.Storage = (*MemoryStorage)(nil)
