package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/davidahmann/neuroflow/internal/analysis"
	"github.com/davidahmann/neuroflow/internal/auth"
	"github.com/davidahmann/neuroflow/internal/decision"
	"github.com/davidahmann/neuroflow/internal/gamification"
	"github.com/davidahmann/neuroflow/internal/realtime"
	"github.com/davidahmann/neuroflow/internal/store"
)

const (
	ownerToken = "test-token"
	otherToken = "other-token"
)

type testEnv struct {
	handler *Handler
	router  http.Handler
	hub     *realtime.Hub
	store   *store.InMemoryStore
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	mem := store.NewInMemoryStore()
	var mu sync.Mutex
	n := 0
	newID := func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
	now := func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }

	hub := realtime.NewHub(nil)
	t.Cleanup(hub.Close)

	profiles, err := gamification.NewService(gamification.NewServiceInput{Store: mem, Now: now, NewID: newID})
	if err != nil {
		t.Fatalf("gamification: %v", err)
	}
	analyzer := analysis.NewAnalyzer(nil, nil, nil)
	decisions, err := decision.NewService(decision.NewServiceInput{
		Store:    mem,
		Analyzer: analyzer,
		Points:   profiles,
		Hub:      hub,
		Now:      now,
		NewID:    newID,
	})
	if err != nil {
		t.Fatalf("decisions: %v", err)
	}

	h := &Handler{
		Auth: auth.NewAuthenticator(ownerToken, "u1", map[string]auth.TokenUser{
			otherToken: {UserID: "u2", Email: "u2@example.com"},
		}),
		Decisions: decisions,
		Profiles:  profiles,
		Hub:       hub,
		AI:        analyzer,
		Now:       now,
	}
	return testEnv{handler: h, router: NewRouter(h), hub: hub, store: mem}
}

func (e testEnv) do(t *testing.T, method, path, token, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	res := httptest.NewRecorder()
	e.router.ServeHTTP(res, req)
	return res
}
