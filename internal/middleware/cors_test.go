package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestParseOrigins(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		frontendURL string
		want        []string
	}{
		{name: "empty", frontendURL: "", want: []string{DefaultFrontendOrigin}},
		{name: "single", frontendURL: "https://quests.example.com", want: []string{DefaultFrontendOrigin, "https://quests.example.com"}},
		{
			name:        "list with blanks and duplicates",
			frontendURL: " https://a.example.com, ,https://b.example.com,https://a.example.com,http://localhost:3000",
			want:        []string{DefaultFrontendOrigin, "https://a.example.com", "https://b.example.com"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseOrigins(tt.frontendURL))
		})
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	handler := CORS("https://quests.example.com", zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		origin     string
		wantOrigin string
	}{
		{name: "configured origin", origin: "https://quests.example.com", wantOrigin: "https://quests.example.com"},
		{name: "local development", origin: "http://localhost:3000", wantOrigin: "http://localhost:3000"},
		{name: "unknown origin", origin: "https://evil.example.com", wantOrigin: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodOptions, "/api/v1/catalog", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}
