package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/ghostwatch/internal/auth"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/comments"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/dbtest"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/ghosts"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/server"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/sightings"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/store"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/tours"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	signingSecret   = "integration-secret"
	jsonContentType = "application/json"
)

func TestReportCommentAndTourFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	st := dbtest.NewStore(testContext)
	testServer := httptest.NewServer(buildHandler(testContext, st))
	defer testServer.Close()

	registered := postJSON(testContext, testServer.URL+"/api/register", "", map[string]string{
		"username": "sam",
		"email":    "sam@x.com",
		"password": "p",
	}, http.StatusCreated)
	var profile users.Profile
	decode(testContext, registered, &profile)

	loggedIn := postJSON(testContext, testServer.URL+"/api/login", "", map[string]string{
		"login":    "sam",
		"password": "p",
	}, http.StatusOK)
	var session struct {
		AccessToken string `json:"access_token"`
	}
	decode(testContext, loggedIn, &session)
	if session.AccessToken == "" {
		testContext.Fatalf("expected an access token")
	}

	created := postJSON(testContext, testServer.URL+"/api/sightings", "", map[string]any{
		"userReportID": fmt.Sprint(profile.ID),
		"description":  "saw a shadow",
		"visibility":   9,
	}, http.StatusCreated)
	var sighting sightings.Sighting
	decode(testContext, created, &sighting)
	if sighting.Visibility != 9 || sighting.GhostName != ghosts.UnknownName || sighting.ReporterName != "sam" {
		testContext.Fatalf("unexpected sighting %+v", sighting)
	}

	commentsURL := fmt.Sprintf("%s/api/sightings/%d/comments", testServer.URL, sighting.ID)
	discard(postJSON(testContext, commentsURL, "", map[string]any{"userID": profile.ID, "description": "first"}, http.StatusCreated))
	discard(postJSON(testContext, commentsURL, "", map[string]any{"userID": profile.ID, "description": "second"}, http.StatusOK))
	var listed []comments.Comment
	decode(testContext, getJSON(testContext, commentsURL, http.StatusOK), &listed)
	if len(listed) != 1 || listed[0].Description != "second" {
		testContext.Fatalf("unexpected comments %+v", listed)
	}

	ghostCreated := postJSON(testContext, testServer.URL+"/api/ghosts", "", map[string]any{"name": "Lantern Keeper", "type": "Wisp"}, http.StatusCreated)
	var ghost ghosts.Ghost
	decode(testContext, ghostCreated, &ghost)

	start := time.Date(2026, time.November, 1, 20, 0, 0, 0, time.UTC)
	tourCreated := postJSON(testContext, testServer.URL+"/api/tours", "", map[string]any{
		"guide":     "Sam",
		"path":      "Boathouse -> Chapel",
		"startTime": start.Format(time.RFC3339),
		"endTime":   start.Add(2 * time.Hour).Format(time.RFC3339),
		"ghostIds":  []int64{ghost.ID},
	}, http.StatusCreated)
	var tour tours.Tour
	decode(testContext, tourCreated, &tour)

	joinURL := fmt.Sprintf("%s/api/tours/%d/join", testServer.URL, tour.ID)
	discard(postJSON(testContext, joinURL, session.AccessToken, nil, http.StatusOK))
	discard(postJSON(testContext, joinURL, session.AccessToken, nil, http.StatusOK))
	var participants []tours.Participant
	decode(testContext, getJSON(testContext, fmt.Sprintf("%s/api/tours/%d/participants", testServer.URL, tour.ID), http.StatusOK), &participants)
	if len(participants) != 1 || participants[0].UserID != profile.ID {
		testContext.Fatalf("expected a single membership, got %+v", participants)
	}

	deleteRequest, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/users/%d", testServer.URL, profile.ID), http.NoBody)
	if err != nil {
		testContext.Fatalf("failed to build delete request: %v", err)
	}
	deleteRequest.Header.Set("Authorization", "Bearer "+session.AccessToken)
	deleteResponse, err := http.DefaultClient.Do(deleteRequest)
	if err != nil {
		testContext.Fatalf("delete request failed: %v", err)
	}
	_ = deleteResponse.Body.Close()
	if deleteResponse.StatusCode != http.StatusNoContent {
		testContext.Fatalf("unexpected delete status %d", deleteResponse.StatusCode)
	}

	for _, table := range []string{"sightings", "sighting_comments", "sighting_reports_ghost", "tour_sign_ups", "users"} {
		if count := dbtest.Count(testContext, st, table); count != 0 {
			testContext.Fatalf("expected %s to be empty after account deletion, got %d rows", table, count)
		}
	}
	if count := dbtest.Count(testContext, st, "ghosts"); count != 2 {
		testContext.Fatalf("expected ghosts to survive account deletion, got %d", count)
	}
}

func buildHandler(testContext *testing.T, st store.Store) http.Handler {
	testContext.Helper()
	logger := zap.NewNop()

	sightingService, err := sightings.NewService(sightings.ServiceConfig{Store: st, Logger: logger})
	if err != nil {
		testContext.Fatalf("failed to build sightings service: %v", err)
	}
	ghostService, err := ghosts.NewService(ghosts.ServiceConfig{Store: st, Logger: logger})
	if err != nil {
		testContext.Fatalf("failed to build ghosts service: %v", err)
	}
	sightingComments, err := comments.NewService(comments.ServiceConfig{Store: st, Target: comments.SightingTarget, Logger: logger})
	if err != nil {
		testContext.Fatalf("failed to build sighting comments service: %v", err)
	}
	ghostComments, err := comments.NewService(comments.ServiceConfig{Store: st, Target: comments.GhostTarget, Logger: logger})
	if err != nil {
		testContext.Fatalf("failed to build ghost comments service: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Store: st, Logger: logger})
	if err != nil {
		testContext.Fatalf("failed to build users service: %v", err)
	}
	tourService, err := tours.NewService(tours.ServiceConfig{Store: st, Logger: logger})
	if err != nil {
		testContext.Fatalf("failed to build tours service: %v", err)
	}
	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(signingSecret),
		Issuer:        "ghostwatch-auth",
		Audience:      "ghostwatch-api",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		testContext.Fatalf("failed to build token issuer: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Health:           st,
		TokenManager:     tokenIssuer,
		Sightings:        sightingService,
		Ghosts:           ghostService,
		SightingComments: sightingComments,
		GhostComments:    ghostComments,
		Users:            userService,
		Tours:            tourService,
		AuthRateLimit:    server.RateLimit{RPS: 50, Burst: 50},
		Logger:           logger,
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}
	return handler
}

func postJSON(testContext *testing.T, url, token string, body any, wantStatus int) *http.Response {
	testContext.Helper()
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			testContext.Fatalf("failed to encode body: %v", err)
		}
		payload = encoded
	}
	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		testContext.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Content-Type", jsonContentType)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("request to %s failed: %v", url, err)
	}
	if response.StatusCode != wantStatus {
		_ = response.Body.Close()
		testContext.Fatalf("POST %s: unexpected status %d, want %d", url, response.StatusCode, wantStatus)
	}
	return response
}

func getJSON(testContext *testing.T, url string, wantStatus int) *http.Response {
	testContext.Helper()
	response, err := http.Get(url)
	if err != nil {
		testContext.Fatalf("request to %s failed: %v", url, err)
	}
	if response.StatusCode != wantStatus {
		_ = response.Body.Close()
		testContext.Fatalf("GET %s: unexpected status %d, want %d", url, response.StatusCode, wantStatus)
	}
	return response
}

func decode(testContext *testing.T, response *http.Response, dest any) {
	testContext.Helper()
	defer response.Body.Close()
	if err := json.NewDecoder(response.Body).Decode(dest); err != nil {
		testContext.Fatalf("failed to decode response: %v", err)
	}
}

func discard(response *http.Response) {
	_ = response.Body.Close()
}
