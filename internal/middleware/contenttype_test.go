package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		method      string
		body        string
		contentType string
		want        int
	}{
		{name: "GET without content type", method: http.MethodGet, want: http.StatusOK},
		{name: "POST action without body", method: http.MethodPost, want: http.StatusOK},
		{name: "POST json", method: http.MethodPost, body: `{"times":2}`, contentType: "application/json", want: http.StatusOK},
		{name: "POST json with charset", method: http.MethodPost, body: `{"times":2}`, contentType: "application/json; charset=utf-8", want: http.StatusOK},
		{name: "POST body without content type", method: http.MethodPost, body: `{"times":2}`, want: http.StatusBadRequest},
		{name: "PUT form body", method: http.MethodPut, body: "a=b", contentType: "application/x-www-form-urlencoded", want: http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := ContentType(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, "/api/v1/catalog", strings.NewReader(tt.body))
			} else {
				req = httptest.NewRequest(tt.method, "/api/v1/catalog", nil)
			}
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}
