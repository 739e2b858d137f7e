package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/storecore/internal/config"
)

// Claims 登录态：除客户身份外必须携带租户 ID，
// 下游所有订单读写都以它做租户隔离
type Claims struct {
	CustomerID string `json:"customer_id"`
	TenantID   string `json:"tenant_id"`
	Email      string `json:"email"`
	IsAdmin    bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// GenerateToken 生成 JWT
func GenerateToken(cfg *config.JWTConfig, customerID, tenantID, email string, isAdmin bool) (string, error) {
	now := time.Now()
	claims := Claims{
		CustomerID: customerID,
		TenantID:   tenantID,
		Email:      email,
		IsAdmin:    isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

// ParseToken 解析 JWT
func ParseToken(cfg *config.JWTConfig, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}
