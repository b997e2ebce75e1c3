package jwt_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creditkit/pkg/jwt"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	s, err := jwt.New([]byte("test-secret"))
	require.NoError(t, err)

	userID := uuid.New()
	token, err := s.Issue(userID, time.Hour)
	require.NoError(t, err)
	badSubject, err := s.Generate(jwt.Claims{Subject: "alice"})
	require.NoError(t, err)

	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := jwt.ClaimsFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(jwt.UserIDFromContext(r.Context()).String() + " " + claims.Subject))
	})

	t.Run("resolves the user id", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/tokens", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		jwt.Middleware(s, nil)(echo).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, userID.String()+" "+userID.String(), rec.Body.String())
	})

	t.Run("rejections", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name   string
			header string
			want   error
		}{
			{"no header", "", jwt.ErrMissingToken},
			{"wrong scheme", "Basic " + token, jwt.ErrMissingToken},
			{"garbage", "Bearer nope", jwt.ErrInvalidToken},
			{"subject is not a uuid", "Bearer " + badSubject, jwt.ErrInvalidSubject},
		}

		for _, tt := range tests {
			var got error
			onError := func(w http.ResponseWriter, _ *http.Request, err error) {
				got = err
				w.WriteHeader(http.StatusUnauthorized)
			}

			req := httptest.NewRequest(http.MethodGet, "/tokens", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			jwt.Middleware(s, onError)(echo).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code, tt.name)
			assert.True(t, errors.Is(got, tt.want), tt.name)
		}
	})

	t.Run("default error handler", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		jwt.Middleware(s, nil)(echo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tokens", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("user id is nil without middleware", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, uuid.Nil, jwt.UserIDFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
	})
}
