package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	"github.com/evswap/swap-station/internal/models"
)

func TestNewService(t *testing.T) {
	service, err := NewService()
	assert.NoError(t, err)
	assert.NotNil(t, service)
	assert.NotEmpty(t, service.jwtSecret)
	assert.Equal(t, 24*time.Hour, service.tokenExp)
}

func TestService_GenerateToken(t *testing.T) {
	service, _ := NewService()

	token, err := service.GenerateToken("driver-1", "testdriver", models.RoleDriver)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestService_ValidateToken(t *testing.T) {
	service, _ := NewService()

	token, _ := service.GenerateToken("driver-1", "testdriver", models.RoleDriver)

	// Test valid token
	claims, err := service.ValidateToken(token)
	assert.NoError(t, err)
	assert.NotNil(t, claims)
	assert.Equal(t, "driver-1", claims.UserID)
	assert.Equal(t, "testdriver", claims.Username)
	assert.Equal(t, models.RoleDriver, claims.Role)

	// Test invalid token
	_, err = service.ValidateToken("invalid-token")
	assert.Error(t, err)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestService_ValidateToken_BearerPrefix(t *testing.T) {
	service, _ := NewService()

	token, _ := service.GenerateToken("staff-1", "teststaff", models.RoleStaff)

	claims, err := service.ValidateToken("Bearer " + token)
	assert.NoError(t, err)
	assert.Equal(t, models.RoleStaff, claims.Role)
}

func TestService_ValidateToken_Expired(t *testing.T) {
	service, _ := NewService()

	claims := jwt.MapClaims{
		"user_id":  "driver-1",
		"username": "testdriver",
		"role":     string(models.RoleDriver),
		"exp":      time.Now().Add(-time.Hour).Unix(),
		"iat":      time.Now().Add(-2 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(service.jwtSecret)
	assert.NoError(t, err)

	_, err = service.ValidateToken(signed)
	assert.Equal(t, ErrExpiredToken, err)
}

func TestService_ValidateToken_UnknownRole(t *testing.T) {
	service, _ := NewService()

	claims := jwt.MapClaims{
		"user_id":  "driver-1",
		"username": "testdriver",
		"role":     "superuser",
		"exp":      time.Now().Add(time.Hour).Unix(),
		"iat":      time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(service.jwtSecret)
	assert.NoError(t, err)

	_, err = service.ValidateToken(signed)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestService_ValidateToken_WrongSecret(t *testing.T) {
	service, _ := NewService()

	other := &Service{jwtSecret: []byte("some-other-secret"), tokenExp: time.Hour}
	token, _ := other.GenerateToken("driver-1", "testdriver", models.RoleDriver)

	_, err := service.ValidateToken(token)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestService_ExtractTokenFromHeader(t *testing.T) {
	service, _ := NewService()

	// Test valid header
	token, err := service.ExtractTokenFromHeader("Bearer abc123")
	assert.NoError(t, err)
	assert.Equal(t, "abc123", token)

	// Test missing header
	_, err = service.ExtractTokenFromHeader("")
	assert.Equal(t, ErrInvalidToken, err)

	// Test malformed header
	_, err = service.ExtractTokenFromHeader("abc123")
	assert.Equal(t, ErrInvalidToken, err)

	_, err = service.ExtractTokenFromHeader("Basic abc123")
	assert.Equal(t, ErrInvalidToken, err)

	_, err = service.ExtractTokenFromHeader("Bearer ")
	assert.Equal(t, ErrInvalidToken, err)
}
