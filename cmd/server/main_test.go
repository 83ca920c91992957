package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"image-converter/internal/api"
	"image-converter/internal/workflow"
)

func TestMuxRoutes(t *testing.T) {
	sessions := api.NewSessionManager(func() *workflow.Controller {
		return workflow.NewController(nil, nil)
	}, time.Minute)
	defer sessions.Close()

	page := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("page"))
	})
	mux := newMux(api.NewServer(sessions, 0).Handler(), page)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodPost, "/api/sessions", http.StatusCreated},
		{http.MethodGet, "/api/sessions/missing", http.StatusNotFound},
		{http.MethodGet, "/api", http.StatusMovedPermanently},
		{http.MethodGet, "/", http.StatusOK},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s: expected %d, got %d", tt.method, tt.path, tt.want, rec.Code)
		}
	}
}
