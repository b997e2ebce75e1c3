package jwt_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creditkit/pkg/jwt"
)

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := jwt.New(nil)
	assert.ErrorIs(t, err, jwt.ErrMissingSigningKey)

	_, err = jwt.NewFromConfig(jwt.Config{})
	assert.ErrorIs(t, err, jwt.ErrMissingSigningKey)

	s, err := jwt.NewFromConfig(jwt.Config{SigningKey: "secret"})
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	s, err := jwt.New([]byte("secret"), jwt.WithIssuer("identity"), jwt.WithAudience("billing"), jwt.WithClock(clock))
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		userID := uuid.New()

		token, err := s.Issue(userID, time.Hour)
		require.NoError(t, err)
		assert.Len(t, strings.Split(token, "."), 3)

		claims, err := s.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "identity", claims.Issuer)
		assert.Equal(t, "billing", claims.Audience)
		assert.Equal(t, now.Add(time.Hour).Unix(), claims.ExpiresAt)

		got, err := claims.UserID()
		require.NoError(t, err)
		assert.Equal(t, userID, got)
	})

	t.Run("rejections", func(t *testing.T) {
		t.Parallel()

		other, err := jwt.New([]byte("other-secret"), jwt.WithIssuer("identity"), jwt.WithAudience("billing"), jwt.WithClock(clock))
		require.NoError(t, err)
		forged, err := other.Issue(uuid.New(), time.Hour)
		require.NoError(t, err)

		expired, err := s.Generate(jwt.Claims{Subject: uuid.NewString(), Issuer: "identity", Audience: "billing", ExpiresAt: now.Add(-time.Minute).Unix()})
		require.NoError(t, err)
		notYet, err := s.Generate(jwt.Claims{Subject: uuid.NewString(), Issuer: "identity", Audience: "billing", NotBefore: now.Add(time.Minute).Unix()})
		require.NoError(t, err)
		wrongIssuer, err := s.Generate(jwt.Claims{Subject: uuid.NewString(), Issuer: "someone", Audience: "billing"})
		require.NoError(t, err)
		wrongAudience, err := s.Generate(jwt.Claims{Subject: uuid.NewString(), Issuer: "identity", Audience: "admin"})
		require.NoError(t, err)

		tests := []struct {
			name  string
			token string
			want  error
		}{
			{"malformed", "abc.def", jwt.ErrInvalidToken},
			{"wrong key", forged, jwt.ErrInvalidSignature},
			{"expired", expired, jwt.ErrExpiredToken},
			{"not yet valid", notYet, jwt.ErrInvalidToken},
			{"issuer", wrongIssuer, jwt.ErrInvalidIssuer},
			{"audience", wrongAudience, jwt.ErrInvalidAudience},
		}
		for _, tt := range tests {
			_, err := s.Verify(tt.token)
			assert.ErrorIs(t, err, tt.want, tt.name)
		}
	})

	t.Run("leeway tolerates skew", func(t *testing.T) {
		t.Parallel()
		lenient, err := jwt.New([]byte("secret"), jwt.WithLeeway(2*time.Minute), jwt.WithClock(clock))
		require.NoError(t, err)

		token, err := lenient.Generate(jwt.Claims{Subject: uuid.NewString(), ExpiresAt: now.Add(-time.Minute).Unix()})
		require.NoError(t, err)
		_, err = lenient.Verify(token)
		assert.NoError(t, err)
	})

	t.Run("generate requires claims", func(t *testing.T) {
		t.Parallel()
		_, err := s.Generate(nil)
		assert.ErrorIs(t, err, jwt.ErrMissingClaims)
	})
}

func TestClaims_UserID(t *testing.T) {
	t.Parallel()

	for _, sub := range []string{"", "42", uuid.Nil.String()} {
		_, err := jwt.Claims{Subject: sub}.UserID()
		assert.ErrorIs(t, err, jwt.ErrInvalidSubject, sub)
	}
}
