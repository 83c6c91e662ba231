package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/osnovci/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-unit-tests-only"

func newTestTokenManager() *TokenManager {
	return NewTokenManager(testSecret, 15*time.Minute, 10*time.Minute)
}

func TestGenerateAccessToken_CarriesRoleAndJTI(t *testing.T) {
	tm := newTestTokenManager()
	user := &models.User{ID: "u-1", Email: "parent@example.com", Role: models.RoleGuardian}

	token, expiresAt, err := tm.GenerateAccessToken(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := tm.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, models.RoleGuardian, claims.Role)
	assert.Equal(t, TokenTypeAccess, claims.Type)
	assert.NotEmpty(t, claims.ID)
}

func TestGenerateAccessToken_UniqueJTI(t *testing.T) {
	tm := newTestTokenManager()
	user := &models.User{ID: "u-1", Role: models.RoleStudent}

	t1, _, err := tm.GenerateAccessToken(user)
	require.NoError(t, err)
	t2, _, err := tm.GenerateAccessToken(user)
	require.NoError(t, err)

	c1, err := tm.ValidateToken(t1)
	require.NoError(t, err)
	c2, err := tm.ValidateToken(t2)
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, c2.ID)
}

func TestGenerateAccessToken_RejectsEmptyUser(t *testing.T) {
	tm := newTestTokenManager()

	_, _, err := tm.GenerateAccessToken(nil)
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, _, err = tm.GenerateAccessToken(&models.User{})
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	tm := newTestTokenManager()
	other := NewTokenManager("a-completely-different-secret", time.Minute, time.Minute)

	token, _, err := other.GenerateAccessToken(&models.User{ID: "u-1", Role: models.RoleGuardian})
	require.NoError(t, err)

	_, err = tm.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	tm := newTestTokenManager()
	issuedAt := time.Now().Add(-time.Hour)
	tm.now = func() time.Time { return issuedAt }

	token, _, err := tm.GenerateAccessToken(&models.User{ID: "u-1", Role: models.RoleGuardian})
	require.NoError(t, err)

	tm.now = time.Now
	_, err = tm.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	tm := newTestTokenManager()
	claims := &models.TokenClaims{
		Type:   TokenTypeAccess,
		UserID: "u-1",
		Role:   models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tm.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Garbage(t *testing.T) {
	tm := newTestTokenManager()
	_, err := tm.ValidateToken("not.a.token")
	assert.Error(t, err)
}

func TestStudentLinkToken_RoundTrip(t *testing.T) {
	tm := newTestTokenManager()

	token, expiresAt, err := tm.GenerateStudentLinkToken("student-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), expiresAt, 5*time.Second)

	studentID, err := tm.ValidateStudentLinkToken(token)
	require.NoError(t, err)
	assert.Equal(t, "student-1", studentID)
}

func TestStudentLinkToken_NotAcceptedAsAccessToken(t *testing.T) {
	tm := newTestTokenManager()

	token, _, err := tm.GenerateStudentLinkToken("student-1")
	require.NoError(t, err)

	_, err = tm.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestAccessToken_NotAcceptedAsStudentLink(t *testing.T) {
	tm := newTestTokenManager()

	token, _, err := tm.GenerateAccessToken(&models.User{ID: "guardian-1", Role: models.RoleGuardian})
	require.NoError(t, err)

	_, err = tm.ValidateStudentLinkToken(token)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestStudentLinkToken_Tampered(t *testing.T) {
	tm := newTestTokenManager()

	token, _, err := tm.GenerateStudentLinkToken("student-1")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	forged := parts[0] + "." + parts[1] + "x." + parts[2]

	_, err = tm.ValidateStudentLinkToken(forged)
	assert.Error(t, err)
}

func TestRenderQRPNG(t *testing.T) {
	png, err := RenderQRPNG("payload", 0)
	require.NoError(t, err)
	require.Greater(t, len(png), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])

	assert.True(t, strings.HasPrefix(QRDataURL(png), "data:image/png;base64,"))
}
