package cmd

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTailnetHandler(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := tailnetHandler(inner)

	tests := []struct {
		path string
		want int
	}{
		{"/ws", http.StatusTeapot},
		{"/health", http.StatusTeapot},
		{"/api/devices", http.StatusTeapot},
		{"/api/pairs/p1", http.StatusTeapot},
		{"/debug/pprof/", http.StatusNotFound},
		{"/", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
}
