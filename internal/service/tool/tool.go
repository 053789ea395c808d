package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/ashwinyue/next-bot/internal/model"
	"github.com/ashwinyue/next-bot/internal/repository"
)

// 管理操作错误
var (
	ErrNotCustomTool      = errors.New("tool is not a custom tool")
	ErrInvalidCustomTool  = errors.New("invalid custom tool")
	ErrInvalidConfig      = errors.New("invalid tool config")
	ErrNotInstalled       = errors.New("tool is not installed for this bot")
	ErrCredentialMismatch = errors.New("credential provider does not match tool integration")
	ErrCredentialNotOwned = errors.New("credential not found")
)

// Service 工具管理服务
type Service struct {
	repo     *repository.Repositories
	registry *Registry
	executor *Executor
	factory  *CustomToolFactory
	logger   *slog.Logger
}

// NewService 创建工具服务
func NewService(repo *repository.Repositories, executor *Executor, factory *CustomToolFactory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		registry: executor.Registry(),
		executor: executor,
		factory:  factory,
		logger:   logger,
	}
}

// Executor 返回执行器
func (s *Service) Executor() *Executor {
	return s.executor
}

// RegisterBuiltins 注册内置工具并确保 tools 表中有对应记录，重复调用无副作用
func (s *Service) RegisterBuiltins(ctx context.Context, defs ...*Definition) error {
	if s.registry.IsInitialized() {
		return nil
	}
	for _, def := range defs {
		if err := s.registry.Register(def); err != nil {
			return fmt.Errorf("failed to register builtin tool: %w", err)
		}
		row := &model.Tool{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Type:        string(def.Type),
			IsActive:    true,
		}
		NonCritical(ctx, s.logger, "ensure_builtin_row", func(ctx context.Context) error {
			return s.repo.Tool.EnsureBuiltin(ctx, row)
		})
	}
	s.registry.SetInitialized(true)
	s.logger.Info("builtin tools registered", "count", len(defs))
	return nil
}

// LoadPublicCustomTools 启动时物化所有公开的自定义工具，损坏的记录跳过
func (s *Service) LoadPublicCustomTools(ctx context.Context) (int, error) {
	rows, err := s.repo.Tool.ListActivePublicCustom(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list custom tools: %w", err)
	}

	loaded := 0
	for _, row := range rows {
		def, err := s.factory.CreateCustomToolDefinition(row)
		if err != nil {
			s.logger.Warn("skipping custom tool", "tool_id", row.ID, "error", err)
			continue
		}
		if err := s.registry.Register(def); err != nil {
			s.logger.Warn("skipping custom tool", "tool_id", row.ID, "error", err)
			continue
		}
		loaded++
	}
	s.logger.Info("custom tools loaded", "count", loaded)
	return loaded, nil
}

// CustomToolRequest 创建或更新自定义工具请求
type CustomToolRequest struct {
	Name                string                      `json:"name" binding:"required"`
	Description         string                      `json:"description"`
	FunctionDescription string                      `json:"functionDescription"`
	Parameters          []model.CustomToolParameter `json:"parameters"`
	ServerURL           string                      `json:"serverUrl" binding:"required"`
	SecretToken         string                      `json:"secretToken"`
	Timeout             int                         `json:"timeout"`
	HTTPHeaders         []model.CustomToolHeader    `json:"httpHeaders"`
	Async               bool                        `json:"async"`
	Strict              bool                        `json:"strict"`
	// BotID 为空表示公开工具
	BotID *string `json:"botId"`
}

func (r *CustomToolRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCustomTool)
	}
	u, err := url.ParseRequestURI(r.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: serverUrl must be an absolute http(s) url", ErrInvalidCustomTool)
	}
	if r.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidCustomTool)
	}
	for _, p := range r.Parameters {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: parameter name is required", ErrInvalidCustomTool)
		}
	}
	return nil
}

// applyTo 将请求写入记录
func (r *CustomToolRequest) applyTo(row *model.Tool) error {
	params := make([]*Param, 0, len(r.Parameters))
	for _, p := range r.Parameters {
		params = append(params, &Param{
			Name:        p.Name,
			Kind:        ParseKind(p.Type),
			Description: p.Description,
			Required:    p.Required,
			Enum:        p.Enum,
			Items:       ParseKind(p.ItemsType),
		})
	}
	schema, err := ObjectSchema(params...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCustomTool, err)
	}

	fnDescription := r.FunctionDescription
	if fnDescription == "" {
		fnDescription = r.Description
	}

	functions, err := json.Marshal(model.CustomToolFunctions{
		Execute: &model.CustomToolFunction{
			Name:        CustomFunctionName,
			Description: fnDescription,
			Parameters:  r.Parameters,
			Schema:      schema.Document(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal functions: %w", err)
	}
	functionsSchema, err := json.Marshal([]map[string]interface{}{{
		"name":        CustomFunctionName,
		"description": fnDescription,
		"parameters":  schema.Document(),
	}})
	if err != nil {
		return fmt.Errorf("failed to marshal functions schema: %w", err)
	}
	configs, err := json.Marshal(model.CustomToolConfigs{
		ServerURL:   r.ServerURL,
		SecretToken: r.SecretToken,
		Timeout:     r.Timeout,
		HTTPHeaders: r.HTTPHeaders,
		Async:       r.Async,
		Strict:      r.Strict,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal configs: %w", err)
	}

	row.Name = r.Name
	row.Description = r.Description
	row.Type = string(TypeCustom)
	row.Functions = datatypes.JSON(functions)
	row.FunctionsSchema = datatypes.JSON(functionsSchema)
	row.RequiredConfigs = datatypes.JSON(configs)
	if r.BotID != nil && *r.BotID != "" {
		botID := *r.BotID
		row.CreatedByBotID = &botID
	} else {
		row.CreatedByBotID = nil
	}
	return nil
}

// CreateCustomTool 创建自定义工具并立即物化
func (s *Service) CreateCustomTool(ctx context.Context, req *CustomToolRequest) (*model.Tool, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	row := &model.Tool{ID: uuid.New().String(), IsActive: true}
	if err := req.applyTo(row); err != nil {
		return nil, err
	}
	if err := s.repo.Tool.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to create tool: %w", err)
	}

	if err := s.publish(row); err != nil {
		return nil, err
	}
	s.logger.Info("custom tool created", "tool_id", row.ID, "public", row.IsPublic())
	return row, nil
}

// UpdateCustomTool 更新自定义工具，新的定义对后续调用立即生效
func (s *Service) UpdateCustomTool(ctx context.Context, id string, req *CustomToolRequest) (*model.Tool, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	row, err := s.loadCustom(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := req.applyTo(row); err != nil {
		return nil, err
	}
	if err := s.repo.Tool.Update(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to update tool: %w", err)
	}

	if err := s.publish(row); err != nil {
		return nil, err
	}
	s.logger.Info("custom tool updated", "tool_id", row.ID)
	return row, nil
}

// SetToolActive 全局启用或停用工具
func (s *Service) SetToolActive(ctx context.Context, id string, active bool) error {
	if err := s.repo.Tool.SetActive(ctx, id, active); err != nil {
		return err
	}
	row, err := s.repo.Tool.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if row.Type == string(TypeCustom) {
		return s.publish(row)
	}
	return nil
}

// DeleteCustomTool 删除自定义工具及其安装记录
func (s *Service) DeleteCustomTool(ctx context.Context, id string) error {
	if _, err := s.loadCustom(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Tool.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete tool: %w", err)
	}
	s.registry.Remove(id)
	s.executor.Invalidate(id)
	s.logger.Info("custom tool deleted", "tool_id", id)
	return nil
}

// GetCustomTool 获取自定义工具记录
func (s *Service) GetCustomTool(ctx context.Context, id string) (*model.Tool, error) {
	return s.loadCustom(ctx, id)
}

// ListCustomTools 列出 bot 可见的自定义工具
func (s *Service) ListCustomTools(ctx context.Context, botID string) ([]*model.Tool, error) {
	if botID == "" {
		return s.repo.Tool.ListActivePublicCustom(ctx)
	}
	return s.repo.Tool.ListCustomForBot(ctx, botID)
}

func (s *Service) loadCustom(ctx context.Context, id string) (*model.Tool, error) {
	row, err := s.repo.Tool.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if row.Type != string(TypeCustom) {
		return nil, ErrNotCustomTool
	}
	return row, nil
}

// publish 重新物化记录
// 公开工具进入注册表，bot 私有工具只写入该 bot 的物化缓存，停用的工具从两处移除
func (s *Service) publish(row *model.Tool) error {
	s.executor.Invalidate(row.ID)
	if !row.IsActive {
		s.registry.Remove(row.ID)
		return nil
	}

	def, err := s.factory.CreateCustomToolDefinition(row)
	if err != nil {
		return fmt.Errorf("failed to materialize custom tool: %w", err)
	}
	if row.IsPublic() {
		return s.registry.Register(def)
	}
	s.registry.Remove(row.ID)
	s.executor.Prime(*row.CreatedByBotID, def)
	return nil
}

// FunctionInfo 函数描述
type FunctionInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Info 工具描述
type Info struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Description     string                 `json:"description"`
	Type            Type                   `json:"type"`
	IntegrationType string                 `json:"integrationType,omitempty"`
	Functions       []FunctionInfo         `json:"functions"`
	ConfigSchema    map[string]interface{} `json:"configSchema,omitempty"`
	DefaultConfig   map[string]interface{} `json:"defaultConfig,omitempty"`
	Auth            *AuthSpec              `json:"auth,omitempty"`
}

// Describe 生成工具描述
func Describe(def *Definition) *Info {
	info := &Info{
		ID:              def.ID,
		Name:            def.Name,
		Description:     def.Description,
		Type:            def.Type,
		IntegrationType: def.IntegrationType,
		DefaultConfig:   def.DefaultConfig,
		Auth:            def.Auth,
	}
	if def.ConfigSchema != nil {
		info.ConfigSchema = def.ConfigSchema.Document()
	}
	for _, name := range def.FunctionNames() {
		fn := def.Functions[name]
		info.Functions = append(info.Functions, FunctionInfo{
			Name:        name,
			Description: fn.Description,
			Parameters:  fn.Parameters.Document(),
		})
	}
	return info
}

// ListTools 列出注册表中的工具，t 为空时返回全部
func (s *Service) ListTools(ctx context.Context, t Type) []*Info {
	var defs []*Definition
	if t == "" {
		defs = s.registry.GetAll()
	} else {
		defs = s.registry.GetAllByType(t)
	}
	out := make([]*Info, 0, len(defs))
	for _, def := range defs {
		out = append(out, Describe(def))
	}
	return out
}

// GetTool 获取 bot 可见的工具描述
func (s *Service) GetTool(ctx context.Context, toolID, botID string) (*Info, error) {
	def, err := s.executor.Resolve(ctx, toolID, botID)
	if err != nil {
		return nil, err
	}
	return Describe(def), nil
}

// InstallTool 为 bot 安装工具，已安装时更新配置
func (s *Service) InstallTool(ctx context.Context, botID, toolID string, cfg map[string]interface{}) (*model.BotTool, error) {
	def, err := s.executor.Resolve(ctx, toolID, botID)
	if err != nil {
		return nil, err
	}
	if err := validateConfig(def, cfg); err != nil {
		return nil, err
	}

	existing, err := s.repo.BotTool.Get(ctx, botID, toolID)
	switch {
	case err == nil:
		existing.Config = cfg
		existing.IsEnabled = true
		if err := s.repo.BotTool.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to update bot tool: %w", err)
		}
		return existing, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	bt := &model.BotTool{
		BotID:     botID,
		ToolID:    toolID,
		IsEnabled: true,
		Config:    cfg,
	}
	if err := s.repo.BotTool.Create(ctx, bt); err != nil {
		return nil, fmt.Errorf("failed to install tool: %w", err)
	}
	s.logger.Info("tool installed", "bot_id", botID, "tool_id", toolID)
	return bt, nil
}

// UpdateBotToolConfig 更新 bot 的工具配置
func (s *Service) UpdateBotToolConfig(ctx context.Context, botID, toolID string, cfg map[string]interface{}) (*model.BotTool, error) {
	bt, err := s.installed(ctx, botID, toolID)
	if err != nil {
		return nil, err
	}
	def, err := s.executor.Resolve(ctx, toolID, botID)
	if err != nil {
		return nil, err
	}
	if err := validateConfig(def, cfg); err != nil {
		return nil, err
	}
	bt.Config = cfg
	if err := s.repo.BotTool.Update(ctx, bt); err != nil {
		return nil, fmt.Errorf("failed to update bot tool: %w", err)
	}
	return bt, nil
}

// SetBotToolEnabled 启用或停用 bot 的工具
func (s *Service) SetBotToolEnabled(ctx context.Context, botID, toolID string, enabled bool) (*model.BotTool, error) {
	bt, err := s.installed(ctx, botID, toolID)
	if err != nil {
		return nil, err
	}
	bt.IsEnabled = enabled
	if err := s.repo.BotTool.Update(ctx, bt); err != nil {
		return nil, fmt.Errorf("failed to update bot tool: %w", err)
	}
	return bt, nil
}

// LinkCredential 为 bot 的工具关联凭证，原凭证按引用规则释放
// 凭证必须属于 userID，绑定了 bot 的凭证只能用于该 bot
func (s *Service) LinkCredential(ctx context.Context, userID, botID, toolID, credentialID string) (*model.BotTool, error) {
	bt, err := s.installed(ctx, botID, toolID)
	if err != nil {
		return nil, err
	}
	def, err := s.executor.Resolve(ctx, toolID, botID)
	if err != nil {
		return nil, err
	}
	cred, err := s.repo.Credential.GetByID(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	if cred.UserID != userID || (cred.BotID != nil && *cred.BotID != "" && *cred.BotID != botID) {
		return nil, ErrCredentialNotOwned
	}
	if def.IntegrationType != "" && cred.Provider != def.IntegrationType {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrCredentialMismatch, def.IntegrationType, cred.Provider)
	}

	if bt.CredentialID != nil && *bt.CredentialID != "" && *bt.CredentialID != credentialID {
		if _, err := s.repo.Credential.ReleaseFromBotTool(ctx, *bt.CredentialID, botID, toolID); err != nil {
			return nil, fmt.Errorf("failed to release previous credential: %w", err)
		}
	}

	bt.CredentialID = &credentialID
	if err := s.repo.BotTool.Update(ctx, bt); err != nil {
		return nil, fmt.Errorf("failed to link credential: %w", err)
	}
	return bt, nil
}

// UnlinkCredential 解除凭证关联，无其他引用时删除凭证
func (s *Service) UnlinkCredential(ctx context.Context, botID, toolID string) (bool, error) {
	bt, err := s.installed(ctx, botID, toolID)
	if err != nil {
		return false, err
	}
	if bt.CredentialID == nil || *bt.CredentialID == "" {
		return false, nil
	}
	return s.repo.Credential.ReleaseFromBotTool(ctx, *bt.CredentialID, botID, toolID)
}

// UninstallTool 卸载工具，同时按引用规则释放凭证
func (s *Service) UninstallTool(ctx context.Context, botID, toolID string) error {
	bt, err := s.installed(ctx, botID, toolID)
	if err != nil {
		return err
	}
	if bt.CredentialID != nil && *bt.CredentialID != "" {
		if _, err := s.repo.Credential.ReleaseFromBotTool(ctx, *bt.CredentialID, botID, toolID); err != nil {
			return fmt.Errorf("failed to release credential: %w", err)
		}
	}
	if err := s.repo.BotTool.Delete(ctx, botID, toolID); err != nil {
		return err
	}
	s.logger.Info("tool uninstalled", "bot_id", botID, "tool_id", toolID)
	return nil
}

// BotToolView bot 已安装工具
type BotToolView struct {
	*model.BotTool
	Tool      *Info `json:"tool,omitempty"`
	Connected bool  `json:"connected"`
}

// ListBotTools 列出 bot 已安装的工具，定义已不存在的记录 Tool 为空
func (s *Service) ListBotTools(ctx context.Context, botID string) ([]*BotToolView, error) {
	rows, err := s.repo.BotTool.ListByBot(ctx, botID)
	if err != nil {
		return nil, err
	}
	out := make([]*BotToolView, 0, len(rows))
	for _, bt := range rows {
		view := &BotToolView{
			BotTool:   bt,
			Connected: bt.CredentialID != nil && *bt.CredentialID != "",
		}
		if def, err := s.executor.Resolve(ctx, bt.ToolID, botID); err == nil {
			view.Tool = Describe(def)
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *Service) installed(ctx context.Context, botID, toolID string) (*model.BotTool, error) {
	bt, err := s.repo.BotTool.Get(ctx, botID, toolID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotInstalled
	}
	return bt, err
}

func validateConfig(def *Definition, cfg map[string]interface{}) error {
	if err := def.ValidateConfig(def.MergeConfig(cfg)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
