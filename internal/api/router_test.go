package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/flip-bot/internal/auth"
	"serotonyl.ru/flip-bot/internal/features/accounts"
	"serotonyl.ru/flip-bot/internal/features/admin"
	"serotonyl.ru/flip-bot/internal/features/games"
	"serotonyl.ru/flip-bot/internal/features/payments"
	"serotonyl.ru/flip-bot/internal/features/rewards"
	"serotonyl.ru/flip-bot/internal/features/tasks"
	"serotonyl.ru/flip-bot/internal/ledger"
	"serotonyl.ru/flip-bot/internal/ratelimit"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type server struct {
	router   *gin.Engine
	verifier *auth.Verifier
	limiter  *ratelimit.Limiter
}

func newServer(t *testing.T, limit int) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := ledger.NewMemoryStore()
	verifier := auth.NewVerifier("123:bot-token", time.Hour, clock)
	issuer := auth.NewIssuer("0123456789abcdef", time.Hour, clock)
	limiter := ratelimit.New(limit, time.Minute, clock)
	t.Cleanup(limiter.Close)

	gameSvc := games.NewService(store, games.NewLimiter(games.DailyCaps), clock, games.CryptoPicker)
	paySvc := payments.NewService(store, clock, "flipcoin_bot")
	accSvc := accounts.NewService(store, issuer, func(id int64) bool { return id == 1 }, clock)
	accHandler := accounts.NewHandler(accSvc, verifier)

	router := NewRouter(Handlers{
		Accounts: accHandler,
		Games:    games.NewHandler(gameSvc),
		Tasks:    tasks.NewHandler(tasks.NewService(store), clock),
		Rewards:  rewards.NewHandler(rewards.NewService(store, clock)),
		Payments: payments.NewHandler(paySvc, payments.NewWebhook(paySvc, verifier), accHandler.Locale),
		Admin:    admin.NewHandler(admin.NewService(store, paySvc, nil, clock)),
	}, Options{
		Issuer:      issuer,
		Limiter:     limiter,
		CORSOrigins: "https://app.example",
	})
	return &server{router: router, verifier: verifier, limiter: limiter}
}

func (s *server) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	s.router.ServeHTTP(w, req)
	return w
}

func (s *server) signed(t *testing.T, fields map[string]string) string {
	t.Helper()
	fields[auth.HashField] = s.verifier.Sign(fields)
	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	return string(raw)
}

func (s *server) login(t *testing.T, telegramID int64) string {
	t.Helper()
	body := s.signed(t, map[string]string{
		"id":         strconv.FormatInt(telegramID, 10),
		"first_name": "Neo",
		"username":   "neo" + strconv.FormatInt(telegramID, 10),
		"auth_date":  strconv.FormatInt(now.Unix(), 10),
	})
	w := s.do(t, http.MethodPost, "/api/auth/login", body, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.NotEmpty(t, res.AccessToken)
	return res.AccessToken
}

func balance(t *testing.T, s *server, token string) int64 {
	t.Helper()
	w := s.do(t, http.MethodGet, "/api/auth/profile", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	var p struct {
		FlipTokens int64 `json:"flip_tokens"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p.FlipTokens
}

func TestRouter_LoginPlayAndPay(t *testing.T) {
	s := newServer(t, 1000)
	token := s.login(t, 42)
	assert.Equal(t, ledger.StartingBalance, balance(t, s, token))

	w := s.do(t, http.MethodPost, "/api/games/flip-coin", "", token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	afterGame := balance(t, s, token)
	assert.Greater(t, afterGame, ledger.StartingBalance)

	w = s.do(t, http.MethodPost, "/api/payments/create", `{"package_id":"small"}`, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Payment struct {
			ID int64 `json:"id"`
		} `json:"payment"`
		PaymentLink string `json:"payment_link"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	id := strconv.FormatInt(created.Payment.ID, 10)
	assert.Equal(t, "https://t.me/flipcoin_bot?start=payment_"+id, created.PaymentLink)

	// Подделанная подпись отклоняется и ничего не меняет
	forged := `{"payment_id":"` + id + `","status":"paid","hash":"deadbeef"}`
	w = s.do(t, http.MethodPost, "/api/payments/webhook", forged, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, afterGame, balance(t, s, token))

	webhook := s.signed(t, map[string]string{"payment_id": id, "status": "paid", "telegram_payment_id": "tg-1"})
	for range 2 {
		w = s.do(t, http.MethodPost, "/api/payments/webhook", webhook, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	assert.Equal(t, afterGame+100, balance(t, s, token))
}

func TestRouter_RequiresToken(t *testing.T) {
	s := newServer(t, 1000)

	w := s.do(t, http.MethodGet, "/api/auth/profile", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/games/limits", "", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_AdminByRole(t *testing.T) {
	s := newServer(t, 1000)
	adminToken := s.login(t, 1)
	userToken := s.login(t, 2)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/admin/stats", "", adminToken).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/admin/stats", "", userToken).Code)
}

func TestRouter_Health(t *testing.T) {
	s := newServer(t, 1000)
	w := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestRequestID(t *testing.T) {
	s := newServer(t, 1000)

	w := s.do(t, http.MethodGet, "/health", "", "")
	assert.NotEmpty(t, w.Header().Get(headerRequestID))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(headerRequestID, "req-1")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get(headerRequestID))
}

func TestCORS(t *testing.T) {
	s := newServer(t, 1000)

	req := httptest.NewRequest(http.MethodOptions, "/api/games/flip-coin", nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	s := newServer(t, 2)
	token := s.login(t, 42) // первый запрос

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/games/limits", "", token).Code)
	w := s.do(t, http.MethodGet, "/api/games/limits", "", token)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/games/limits", "", token)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "61", w.Header().Get("Retry-After"))
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"internal"`)
}
