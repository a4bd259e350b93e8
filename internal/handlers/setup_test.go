package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"ats-optimizer/internal/analyzer"
	"ats-optimizer/internal/auth"
	"ats-optimizer/internal/config"
	"ats-optimizer/internal/quota"
	"ats-optimizer/internal/resetpass"
	"ats-optimizer/internal/storage"
	"ats-optimizer/internal/testutil"
)

type fakeAnalyzer struct {
	result *analyzer.Result
	err    error

	calls   int
	gotCV   string
	gotJob  string
	gotLang string
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, cvText, jobDescription, language string) (*analyzer.Result, error) {
	f.calls++
	f.gotCV = cvText
	f.gotJob = jobDescription
	f.gotLang = language
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type recordingMailer struct {
	sent chan string
}

func (m *recordingMailer) SendPasswordResetEmail(toEmail, resetToken string) error {
	m.sent <- resetToken
	return nil
}

func (m *recordingMailer) waitToken(t *testing.T) string {
	t.Helper()
	select {
	case token := <-m.sent:
		return token
	case <-time.After(2 * time.Second):
		t.Fatal("no reset email was sent")
		return ""
	}
}

type testEnv struct {
	handlers *Handlers
	store    *testutil.MemoryStorage
	tokens   *auth.TokenManager
	analyzer *fakeAnalyzer
	mailer   *recordingMailer
	router   *mux.Router
}

func defaultResult() *analyzer.Result {
	return &analyzer.Result{
		ATSScore:         65,
		MatchingKeywords: []string{"go"},
		MissingKeywords:  []string{"kubernetes"},
		Strengths:        []string{"backend depth"},
		Improvements:     []string{"quantify impact"},
		Suggestions: []analyzer.Suggestion{
			{Section: "skills", Issue: "missing orchestration", Suggestion: "add kubernetes"},
		},
		Summary:    "Decent fit.",
		TokensUsed: 987,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := testutil.NewMemoryStorage()
	tokens, err := auth.NewTokenManager("test-secret-that-is-long-enough-0000")
	require.NoError(t, err)

	mailer := &recordingMailer{sent: make(chan string, 4)}
	az := &fakeAnalyzer{result: defaultResult()}

	cfg := &config.Config{
		Environment:     "development",
		FrontendBaseURL: "http://localhost:3000",
	}

	h := New(store, tokens, auth.NewResolver(tokens, store),
		quota.NewLedger(store), resetpass.NewLedger(store, mailer), az, cfg)

	// The route table mirrors the server's, minus rate limiting.
	router := mux.NewRouter()
	requireSession := auth.RequireSession(tokens)

	router.HandleFunc("/", h.Index).Methods(http.MethodGet)
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	authRouter := router.PathPrefix("/v1/auth").Subrouter()
	authRouter.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	authRouter.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
	authRouter.HandleFunc("/forgot-password", h.ForgotPassword).Methods(http.MethodPost)
	authRouter.HandleFunc("/reset-password", h.ResetPassword).Methods(http.MethodPost)
	authRouter.Handle("/me", requireSession(http.HandlerFunc(h.Me))).Methods(http.MethodGet)
	authRouter.Handle("/account", requireSession(http.HandlerFunc(h.DeleteAccount))).Methods(http.MethodDelete)

	router.HandleFunc("/v1/analyze", h.Analyze).Methods(http.MethodPost)
	router.Handle("/v1/analyze/history", requireSession(http.HandlerFunc(h.History))).Methods(http.MethodGet)

	keysRouter := router.PathPrefix("/v1/keys").Subrouter()
	keysRouter.Use(requireSession)
	keysRouter.HandleFunc("", h.ListKeys).Methods(http.MethodGet)
	keysRouter.HandleFunc("", h.CreateKey).Methods(http.MethodPost)
	keysRouter.HandleFunc("/{id}", h.RevokeKey).Methods(http.MethodDelete)

	router.NotFoundHandler = http.HandlerFunc(h.NotFoundHandler)

	return &testEnv{
		handlers: h,
		store:    store,
		tokens:   tokens,
		analyzer: az,
		mailer:   mailer,
		router:   router,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, fn := range mutate {
		fn(req)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func withCookie(cookie *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(cookie) }
}

func withBearer(secret string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+secret) }
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == auth.SessionCookieName {
			return cookie
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

// register creates an account through the API and returns its id and cookie.
func (e *testEnv) register(t *testing.T, email, password string) (string, *http.Cookie) {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/v1/auth/register",
		map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	user := body["user"].(map[string]interface{})
	return user["id"].(string), sessionCookie(t, rec)
}

// seedSession inserts a user directly and issues a session cookie for it,
// bypassing the registration defaults.
func (e *testEnv) seedSession(t *testing.T, user *storage.User) *http.Cookie {
	t.Helper()

	require.NoError(t, e.store.CreateUser(context.Background(), user))
	token, err := e.tokens.Issue(user.ID, user.Email, user.Plan)
	require.NoError(t, err)
	return &http.Cookie{Name: auth.SessionCookieName, Value: token}
}

func longText(n int) string {
	return strings.Repeat("lorem ipsum ", n/12+1)[:n]
}
