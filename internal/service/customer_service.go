package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"github.com/example/storecore/internal/auth"
	"github.com/example/storecore/internal/config"
	"github.com/example/storecore/internal/datamodels/customer"
	"github.com/example/storecore/internal/errs"
)

// CustomerService 客户注册/登录
// 会话管理不在本系统范围内，这里只负责发放和校验身份令牌
type CustomerService struct {
	repo customer.Repository
	jwt  *config.JWTConfig
}

// NewCustomerService 创建客户服务
func NewCustomerService(repo customer.Repository, jwt *config.JWTConfig) *CustomerService {
	return &CustomerService{repo: repo, jwt: jwt}
}

func hashPassword(raw, salt string) string {
	h := sha256.Sum256([]byte(raw + salt))
	return hex.EncodeToString(h[:])
}

func newSalt() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Register 客户注册
func (s *CustomerService) Register(ctx context.Context, tenantID, email, name, password string) (*customer.Customer, error) {
	if tenantID == "" {
		return nil, errs.Validation("tenant id is required")
	}
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, errs.Validation("a valid email is required")
	}
	if len(password) < 6 {
		return nil, errs.Validation("password must be at least 6 characters")
	}

	c := &customer.Customer{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Email:    email,
		Name:     name,
		Salt:     newSalt(),
	}
	c.Password = hashPassword(password, c.Salt)
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Login 登录并返回 JWT
func (s *CustomerService) Login(ctx context.Context, tenantID, email, password string) (string, error) {
	c, err := s.repo.GetByEmail(ctx, tenantID, email)
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			// 不区分“账号不存在”和“密码错误”
			return "", errs.Authorization("invalid email or password")
		}
		return "", err
	}
	if hashPassword(password, c.Salt) != c.Password {
		return "", errs.Authorization("invalid email or password")
	}
	return auth.GenerateToken(s.jwt, c.ID, c.TenantID, c.Email, c.IsAdmin)
}
