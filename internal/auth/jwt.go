package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin 可访问任意社区
const RoleAdmin = "admin"

// JWTClaims JWT声明，HOACode 限定请求可访问的社区
type JWTClaims struct {
	UserID  string   `json:"user_id"`
	Email   string   `json:"email"`
	HOACode string   `json:"hoa_code"`
	Roles   []string `json:"roles"`
	jwt.RegisteredClaims
}

// IsAdmin 是否管理员
func (c *JWTClaims) IsAdmin() bool {
	for _, role := range c.Roles {
		if role == RoleAdmin {
			return true
		}
	}
	return false
}

// CanAccess 判断token是否允许访问该社区
func (c *JWTClaims) CanAccess(hoaCode string) bool {
	if c.IsAdmin() {
		return true
	}
	return c.HOACode != "" && c.HOACode == hoaCode
}

// JWTService JWT服务
type JWTService struct {
	secretKey []byte
	issuer    string
	expiresIn time.Duration
}

// NewJWTService 创建JWT服务
func NewJWTService(secretKey string, issuer string, expiresIn time.Duration) (*JWTService, error) {
	if secretKey == "" {
		return nil, errors.New("JWT secret key cannot be empty")
	}
	return &JWTService{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		expiresIn: expiresIn,
	}, nil
}

// GenerateToken 生成JWT token
func (j *JWTService) GenerateToken(userID, email, hoaCode string, roles []string) (string, error) {
	now := time.Now()
	claims := &JWTClaims{
		UserID:  userID,
		Email:   email,
		HOACode: hoaCode,
		Roles:   roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiresIn)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secretKey)
}

// ValidateToken 验证JWT token，过期和生效时间由解析器校验
func (j *JWTService) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithIssuer(j.issuer), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("token has expired: %w", err)
		}
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// ExtractTokenFromHeader 从请求头提取token
func ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("authorization header is empty")
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if token == "" {
		return "", errors.New("token is empty")
	}

	return token, nil
}
