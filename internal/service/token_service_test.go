package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registration-api/internal/models"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
)

func TestTokenServiceIssueAndValidate(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "test-secret", Expiration: time.Hour})

	token, expiresAt, err := svc.Issue("F1", "faculty", "Dr. Rao")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "F1", claims.UserID)
	assert.Equal(t, models.RoleFaculty, claims.Role)
	assert.Equal(t, "Dr. Rao", claims.FullName)
	assert.Equal(t, "course-registration", claims.Issuer)
}

func TestTokenServiceRejectsBadTokens(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "test-secret", Expiration: time.Hour})
	other := NewTokenService(TokenConfig{Secret: "other-secret"})

	foreign, _, err := other.Issue("S1", models.RoleStudent, "")
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	unknownRole, _, err := svc.Issue("S1", "JANITOR", "")
	require.NoError(t, err)
	_, err = svc.ValidateToken(unknownRole)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	noUser, _, err := svc.Issue("", models.RoleStudent, "")
	require.NoError(t, err)
	_, err = svc.ValidateToken(noUser)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	expired, _, err := svc.Issue("S1", models.RoleStudent, "")
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	_, err = svc.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestTokenServiceRejectsOtherAlgorithms(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "test-secret"})
	claims := &models.JWTClaims{
		UserID: "A1",
		Role:   models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(signed)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
