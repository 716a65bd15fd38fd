package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckBearer(t *testing.T) {
	require.NoError(t, CheckBearer("Bearer secret", "secret"))
	require.NoError(t, CheckBearer("Bearer  secret ", "secret"))
	require.ErrorIs(t, CheckBearer("Bearer other", "secret"), ErrUnauthorized)
	require.ErrorIs(t, CheckBearer("secret", "secret"), ErrUnauthorized)
	require.ErrorIs(t, CheckBearer("Bearer ", "secret"), ErrUnauthorized)
}

func TestAuthMiddleware(t *testing.T) {
	handler := AuthMiddleware("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer secret", http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, tt.want, rec.Code)
		})
	}
}
