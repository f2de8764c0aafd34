package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/ghostwatch/internal/auth"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/comments"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/dbtest"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/ghosts"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/sightings"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/store"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/tours"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type testHarness struct {
	handler  http.Handler
	store    store.Store
	tokens   *auth.TokenIssuer
	realtime *RealtimeDispatcher
}

type harnessOption func(*Dependencies)

func withLogger(logger *zap.Logger) harnessOption {
	return func(deps *Dependencies) { deps.Logger = logger }
}

func withAuthRateLimit(limit RateLimit) harnessOption {
	return func(deps *Dependencies) { deps.AuthRateLimit = limit }
}

func newTestHarness(t *testing.T, options ...harnessOption) testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := dbtest.NewSeededStore(t)
	clock := func() time.Time { return dbtest.FixedNow }

	sightingService, err := sightings.NewService(sightings.ServiceConfig{Store: st, Clock: clock})
	if err != nil {
		t.Fatalf("sightings service: %v", err)
	}
	ghostService, err := ghosts.NewService(ghosts.ServiceConfig{Store: st})
	if err != nil {
		t.Fatalf("ghosts service: %v", err)
	}
	sightingComments, err := comments.NewService(comments.ServiceConfig{Store: st, Target: comments.SightingTarget, Clock: clock})
	if err != nil {
		t.Fatalf("sighting comments service: %v", err)
	}
	ghostComments, err := comments.NewService(comments.ServiceConfig{Store: st, Target: comments.GhostTarget, Clock: clock})
	if err != nil {
		t.Fatalf("ghost comments service: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Store: st, Clock: clock})
	if err != nil {
		t.Fatalf("users service: %v", err)
	}
	tourService, err := tours.NewService(tours.ServiceConfig{Store: st})
	if err != nil {
		t.Fatalf("tours service: %v", err)
	}
	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "ghostwatch-auth",
		Audience:      "ghostwatch-api",
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	deps := Dependencies{
		Health:           st,
		TokenManager:     tokenIssuer,
		Sightings:        sightingService,
		Ghosts:           ghostService,
		SightingComments: sightingComments,
		GhostComments:    ghostComments,
		Users:            userService,
		Tours:            tourService,
		Realtime:         dispatcher,
		AuthRateLimit:    RateLimit{RPS: 100, Burst: 100},
		Logger:           zap.NewNop(),
	}
	for _, option := range options {
		option(&deps)
	}

	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return testHarness{handler: handler, store: st, tokens: tokenIssuer, realtime: dispatcher}
}

func (h testHarness) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var payload *bytes.Reader
	switch typed := body.(type) {
	case nil:
		payload = bytes.NewReader(nil)
	case string:
		payload = bytes.NewReader([]byte(typed))
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		payload = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, payload)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	return recorder
}

func (h testHarness) token(t *testing.T, userID int64) string {
	t.Helper()
	token, _, err := h.tokens.IssueToken(t.Context(), userID)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(recorder.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, want int) {
	t.Helper()
	if recorder.Code != want {
		t.Fatalf("unexpected status: got %d, want %d (body %s)", recorder.Code, want, recorder.Body.String())
	}
}

func expectError(t *testing.T, recorder *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, recorder, status)
	body := decodeBody[map[string]string](t, recorder)
	if body["error"] != code {
		t.Fatalf("unexpected error code: got %q, want %q", body["error"], code)
	}
}
