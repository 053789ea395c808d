package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/datatypes"

	"github.com/ashwinyue/next-bot/internal/model"
	"github.com/ashwinyue/next-bot/internal/repository"
)

// Repository 凭证存储
type Repository interface {
	Create(ctx context.Context, c *model.Credential) error
	GetByID(ctx context.Context, id string) (*model.Credential, error)
	UpdateCredentials(ctx context.Context, id string, payload datatypes.JSONMap) (*model.Credential, error)
	FindByProvider(ctx context.Context, userID, provider string, botID *string) ([]*model.Credential, error)
	ReleaseFromBotTool(ctx context.Context, id, botID, toolID string) (bool, error)
}

// Service 凭证服务
type Service struct {
	repo   Repository
	cipher *Cipher
	logger *slog.Logger
}

// NewService 创建凭证服务
func NewService(repo Repository, cipher *Cipher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cipher: cipher, logger: logger}
}

// CreateInput 创建凭证参数
type CreateInput struct {
	UserID      string                 `json:"userId" binding:"required"`
	Provider    string                 `json:"provider" binding:"required"`
	Credentials map[string]interface{} `json:"credentials" binding:"required"`
	BotID       *string                `json:"botId"`
}

// CreateCredential 加密并保存凭证，返回值中的 Credentials 为明文
func (s *Service) CreateCredential(ctx context.Context, in *CreateInput) (*model.Credential, error) {
	sealed, err := s.cipher.Encrypt(in.Credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	cred := &model.Credential{
		UserID:      in.UserID,
		BotID:       in.BotID,
		Provider:    in.Provider,
		Credentials: sealed,
	}
	if err := s.repo.Create(ctx, cred); err != nil {
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}

	s.logger.Info("credential created", "credential_id", cred.ID, "provider", cred.Provider)
	out := *cred
	out.Credentials = in.Credentials
	return &out, nil
}

// UpdateCredential 使用新的 IV 重新加密并保存
func (s *Service) UpdateCredential(ctx context.Context, id string, credentials map[string]interface{}) (*model.Credential, error) {
	sealed, err := s.cipher.Encrypt(credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	cred, err := s.repo.UpdateCredentials(ctx, id, sealed)
	if err != nil {
		return nil, err
	}
	out := *cred
	out.Credentials = credentials
	return &out, nil
}

// GetCredential 获取并解密凭证，不存在时返回 nil, nil
func (s *Service) GetCredential(ctx context.Context, id string) (*model.Credential, error) {
	cred, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cred.Credentials = s.cipher.Decrypt(cred.Credentials)
	return cred, nil
}

// FindCredentialsByProvider 按更新时间倒序返回候选凭证，内容保持加密
func (s *Service) FindCredentialsByProvider(ctx context.Context, userID, provider string, botID *string) ([]*model.Credential, error) {
	return s.repo.FindByProvider(ctx, userID, provider, botID)
}

// Decrypt 解密 FindCredentialsByProvider 返回的凭证
func (s *Service) Decrypt(cred *model.Credential) map[string]interface{} {
	return s.cipher.Decrypt(cred.Credentials)
}

// DeleteCredentialReference 解除 bot 工具对凭证的引用，最后一个引用被解除时删除凭证
func (s *Service) DeleteCredentialReference(ctx context.Context, credentialID, botID, toolID string) (bool, error) {
	deleted, err := s.repo.ReleaseFromBotTool(ctx, credentialID, botID, toolID)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info("credential deleted after last reference released", "credential_id", credentialID)
	}
	return deleted, nil
}
