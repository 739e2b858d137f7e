package service

import (
	"context"

	"github.com/example/storecore/internal/config"
	"github.com/example/storecore/internal/datamodels/tenant"
	"github.com/example/storecore/internal/errs"
)

// CredentialResolver 租户支付凭据解析器
// 所有需要测试/生产密钥分流的调用方都走这里，禁止在调用点重复实现兜底链。
// 纯读操作，并且绝不把密钥材料写进日志。
type CredentialResolver struct {
	repo tenant.Repository
	cfg  *config.Config
}

// NewCredentialResolver 创建凭据解析器
func NewCredentialResolver(repo tenant.Repository, cfg *config.Config) *CredentialResolver {
	return &CredentialResolver{repo: repo, cfg: cfg}
}

// Resolve 解析出一组同环境的 (mode, publicKey, secretKey, webhookSecret)
// 规则：
//  1. 非生产环境或显式 forceTest 时无条件走测试环境
//  2. 否则按租户自己存储的 is_test_mode 决定
//  3. 选定环境内优先用该环境专属密钥；仅测试路径允许回落到
//     未迁移租户遗留的单一密钥对
//  4. 找不到可用私钥即判定为配置缺失，这是终态错误，不自动重试
func (s *CredentialResolver) Resolve(ctx context.Context, tenantID string, forceTest bool) (*tenant.Resolved, error) {
	if tenantID == "" {
		return nil, errs.Validation("tenant id is required")
	}

	cred, err := s.repo.GetByTenant(ctx, tenantID)
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			return nil, errs.Configuration("tenant %s has no payment configuration", tenantID)
		}
		return nil, err
	}

	testMode := forceTest || !s.cfg.IsProduction() || cred.IsTestMode

	if testMode {
		if cred.TestSecretKey != "" {
			return &tenant.Resolved{
				Mode:          tenant.ModeTest,
				PublicKey:     cred.TestPublicKey,
				SecretKey:     cred.TestSecretKey,
				WebhookSecret: cred.WebhookSecret,
			}, nil
		}
		// 遗留单密钥兜底：早期租户只配过一对密钥，默认当测试密钥用
		if cred.LegacySecretKey != "" {
			return &tenant.Resolved{
				Mode:          tenant.ModeTest,
				PublicKey:     cred.LegacyPublicKey,
				SecretKey:     cred.LegacySecretKey,
				WebhookSecret: cred.WebhookSecret,
			}, nil
		}
		return nil, errs.Configuration("tenant %s has no usable test secret key", tenantID)
	}

	if cred.LiveSecretKey != "" {
		return &tenant.Resolved{
			Mode:          tenant.ModeLive,
			PublicKey:     cred.LivePublicKey,
			SecretKey:     cred.LiveSecretKey,
			WebhookSecret: cred.WebhookSecret,
		}, nil
	}
	return nil, errs.Configuration("tenant %s has no usable live secret key", tenantID)
}

// ConfigureRequest 租户后台提交的支付配置
type ConfigureRequest struct {
	TenantID      string
	TestPublicKey string
	TestSecretKey string
	LivePublicKey string
	LiveSecretKey string
	WebhookSecret string
	IsTestMode    bool
}

// Configure 写入租户支付配置（覆盖式，一个租户一条）
func (s *CredentialResolver) Configure(ctx context.Context, req ConfigureRequest) error {
	if req.TenantID == "" {
		return errs.Validation("tenant id is required")
	}
	configured := req.TestSecretKey != "" || req.LiveSecretKey != ""
	return s.repo.Upsert(ctx, &tenant.Credential{
		TenantID:      req.TenantID,
		TestPublicKey: req.TestPublicKey,
		TestSecretKey: req.TestSecretKey,
		LivePublicKey: req.LivePublicKey,
		LiveSecretKey: req.LiveSecretKey,
		WebhookSecret: req.WebhookSecret,
		IsTestMode:    req.IsTestMode,
		IsConfigured:  configured,
	})
}

// View 后台查看配置：私钥和 webhook 密钥由模型的 json 标签屏蔽，
// 任何响应里都不出现密钥材料
func (s *CredentialResolver) View(ctx context.Context, tenantID string) (*tenant.Credential, error) {
	if tenantID == "" {
		return nil, errs.Validation("tenant id is required")
	}
	return s.repo.GetByTenant(ctx, tenantID)
}
