package service

import (
	"context"
	"strings"
	"testing"

	"github.com/example/storecore/internal/auth"
	"github.com/example/storecore/internal/config"
	"github.com/example/storecore/internal/datamodels/customer"
	"github.com/example/storecore/internal/errs"
)

type fakeCustomerRepo struct {
	customers map[string]*customer.Customer // key email
}

func newFakeCustomerRepo() *fakeCustomerRepo {
	return &fakeCustomerRepo{customers: make(map[string]*customer.Customer)}
}

func (r *fakeCustomerRepo) Create(ctx context.Context, c *customer.Customer) error {
	r.customers[strings.ToLower(c.Email)] = c
	return nil
}

func (r *fakeCustomerRepo) GetByID(ctx context.Context, tenantID, id string) (*customer.Customer, error) {
	for _, c := range r.customers {
		if c.TenantID == tenantID && c.ID == id {
			return c, nil
		}
	}
	return nil, errs.NotFound("customer %s not found", id)
}

func (r *fakeCustomerRepo) GetByEmail(ctx context.Context, tenantID, email string) (*customer.Customer, error) {
	c, ok := r.customers[strings.ToLower(email)]
	if !ok || c.TenantID != tenantID {
		return nil, errs.NotFound("customer %s not found", email)
	}
	return c, nil
}

func TestRegisterAndLogin(t *testing.T) {
	repo := newFakeCustomerRepo()
	jwtCfg := &config.JWTConfig{Secret: "test-secret"}
	svc := NewCustomerService(repo, jwtCfg)
	ctx := context.Background()

	c, err := svc.Register(ctx, "t1", "buyer@example.com", "Buyer", "secret1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if c.Password == "secret1" {
		t.Error("password must be stored hashed")
	}
	if c.Salt == "" {
		t.Error("salt must be generated")
	}

	token, err := svc.Login(ctx, "t1", "buyer@example.com", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := auth.ParseToken(jwtCfg, token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.TenantID != "t1" || claims.CustomerID != c.ID || claims.IsAdmin {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	repo := newFakeCustomerRepo()
	svc := NewCustomerService(repo, &config.JWTConfig{Secret: "test-secret"})
	ctx := context.Background()

	if _, err := svc.Register(ctx, "t1", "buyer@example.com", "Buyer", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	// 密码错误和账号不存在返回同一个不可区分的错误
	_, errWrongPw := svc.Login(ctx, "t1", "buyer@example.com", "wrong")
	_, errNoUser := svc.Login(ctx, "t1", "nobody@example.com", "secret1")
	if !errs.Is(errWrongPw, errs.KindAuthorization) || !errs.Is(errNoUser, errs.KindAuthorization) {
		t.Fatalf("want authorization errors, got %v / %v", errWrongPw, errNoUser)
	}
	if errWrongPw.Error() != errNoUser.Error() {
		t.Error("login failures must be indistinguishable")
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewCustomerService(newFakeCustomerRepo(), &config.JWTConfig{Secret: "s"})
	ctx := context.Background()

	if _, err := svc.Register(ctx, "", "b@e.com", "B", "secret1"); !errs.Is(err, errs.KindValidation) {
		t.Errorf("missing tenant: %v", err)
	}
	if _, err := svc.Register(ctx, "t1", "not-an-email", "B", "secret1"); !errs.Is(err, errs.KindValidation) {
		t.Errorf("bad email: %v", err)
	}
	if _, err := svc.Register(ctx, "t1", "b@e.com", "B", "short"); !errs.Is(err, errs.KindValidation) {
		t.Errorf("short password: %v", err)
	}
}
