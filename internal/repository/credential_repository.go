package repository

import (
	"context"
	"time"

	"github.com/ashwinyue/next-bot/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CredentialRepository 凭证数据访问
type CredentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository 创建凭证仓库
func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Create 创建凭证
func (r *CredentialRepository) Create(ctx context.Context, c *model.Credential) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// GetByID 获取凭证
func (r *CredentialRepository) GetByID(ctx context.Context, id string) (*model.Credential, error) {
	var c model.Credential
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// UpdateCredentials 更新凭证内容
func (r *CredentialRepository) UpdateCredentials(ctx context.Context, id string, payload datatypes.JSONMap) (*model.Credential, error) {
	result := r.db.WithContext(ctx).Model(&model.Credential{}).Where("id = ?", id).Updates(map[string]interface{}{
		"credentials": payload,
		"updated_at":  time.Now(),
	})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// FindByProvider 按提供方查找凭证，最近更新的在前
func (r *CredentialRepository) FindByProvider(ctx context.Context, userID, provider string, botID *string) ([]*model.Credential, error) {
	var creds []*model.Credential
	query := r.db.WithContext(ctx).Where("user_id = ? AND provider = ?", userID, provider)
	if botID != nil {
		query = query.Where("bot_id = ?", *botID)
	}
	err := query.Order("updated_at DESC").Find(&creds).Error
	return creds, err
}

// CountReferences 统计引用该凭证的安装记录和集成数量
func (r *CredentialRepository) CountReferences(ctx context.Context, id string) (int64, error) {
	return countReferences(r.db.WithContext(ctx), id)
}

// ReleaseFromBotTool 解除 bot 工具对凭证的引用
// 仍有其他引用时只置空本条引用，最后一个引用被解除时删除凭证本身
// 返回凭证是否被删除
func (r *CredentialRepository) ReleaseFromBotTool(ctx context.Context, id, botID, toolID string) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		refs, err := countReferences(tx, id)
		if err != nil {
			return err
		}
		result := tx.Model(&model.BotTool{}).
			Where("bot_id = ? AND tool_id = ? AND credential_id = ?", botID, toolID, id).
			Update("credential_id", nil)
		if result.Error != nil {
			return result.Error
		}
		released := result.RowsAffected
		if refs-released > 0 {
			return nil
		}
		if err := tx.Delete(&model.Credential{}, "id = ?", id).Error; err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func countReferences(db *gorm.DB, id string) (int64, error) {
	var botTools, integrations int64
	if err := db.Model(&model.BotTool{}).Where("credential_id = ?", id).Count(&botTools).Error; err != nil {
		return 0, err
	}
	if err := db.Model(&model.Integration{}).Where("credential_id = ?", id).Count(&integrations).Error; err != nil {
		return 0, err
	}
	return botTools + integrations, nil
}
