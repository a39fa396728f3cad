package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, secret string, expiresIn time.Duration) *JWTService {
	t.Helper()
	service, err := NewJWTService(secret, "neighbr", expiresIn)
	require.NoError(t, err)
	return service
}

func TestNewJWTService_EmptySecret(t *testing.T) {
	_, err := NewJWTService("", "neighbr", time.Hour)
	assert.Error(t, err)
}

func TestJWTService_ValidateToken(t *testing.T) {
	service := newService(t, "test-secret-key", time.Hour)

	// 生成token
	token, err := service.GenerateToken("42", "resident@example.com", "HOA123", []string{"resident"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	// 验证token
	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "resident@example.com", claims.Email)
	assert.Equal(t, "HOA123", claims.HOACode)
	assert.Equal(t, []string{"resident"}, claims.Roles)
}

func TestJWTService_ValidateToken_Expired(t *testing.T) {
	service := newService(t, "test-secret-key", -time.Hour) // 已过期

	token, err := service.GenerateToken("42", "resident@example.com", "HOA123", nil)
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestJWTService_ValidateToken_Invalid(t *testing.T) {
	service := newService(t, "test-secret-key", time.Hour)

	// 使用错误的密钥签发
	wrongService := newService(t, "wrong-secret-key", time.Hour)
	token, err := wrongService.GenerateToken("42", "resident@example.com", "HOA123", nil)
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTService_ValidateToken_WrongIssuer(t *testing.T) {
	other, err := NewJWTService("test-secret-key", "someone-else", time.Hour)
	require.NoError(t, err)
	token, err := other.GenerateToken("42", "resident@example.com", "HOA123", nil)
	require.NoError(t, err)

	_, err = newService(t, "test-secret-key", time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTClaims_CanAccess(t *testing.T) {
	resident := &JWTClaims{HOACode: "HOA123"}
	assert.True(t, resident.CanAccess("HOA123"))
	assert.False(t, resident.CanAccess("HOA999"))

	admin := &JWTClaims{Roles: []string{RoleAdmin}}
	assert.True(t, admin.CanAccess("HOA999"))
	assert.True(t, admin.IsAdmin())
	assert.False(t, resident.IsAdmin())

	assert.False(t, (&JWTClaims{}).CanAccess(""))
}

func TestExtractTokenFromHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{
			name:    "valid token",
			header:  "Bearer valid-token",
			want:    "valid-token",
			wantErr: false,
		},
		{
			name:    "empty header",
			header:  "",
			want:    "",
			wantErr: true,
		},
		{
			name:    "missing bearer prefix",
			header:  "valid-token",
			want:    "",
			wantErr: true,
		},
		{
			name:    "empty token",
			header:  "Bearer ",
			want:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := ExtractTokenFromHeader(tt.header)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.want, token)
			}
		})
	}
}
