package tool

import (
	"log/slog"
	"sync"
)

// Registry 进程内工具目录
// 同一 ID 重复注册时直接替换，后写者生效
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]*Definition
	order       []string
	initialized bool
	logger      *slog.Logger
}

// NewRegistry 创建工具注册表
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Definition),
		logger: logger,
	}
}

// Register 注册或替换工具
func (r *Registry) Register(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, replaced := r.tools[def.ID]
	if !replaced {
		r.order = append(r.order, def.ID)
	}
	r.tools[def.ID] = def

	r.logger.Debug("tool registered",
		"tool_id", def.ID,
		"type", def.Type,
		"functions", len(def.Functions),
		"replaced", replaced,
	)
	return nil
}

// Get 获取工具
func (r *Registry) Get(id string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[id]
	return def, ok
}

// GetAll 按注册顺序返回所有工具
func (r *Registry) GetAll() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Definition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tools[id])
	}
	return out
}

// GetAllByType 返回指定类别的工具
func (r *Registry) GetAllByType(t Type) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Definition, 0)
	for _, id := range r.order {
		if def := r.tools[id]; def.Type == t {
			out = append(out, def)
		}
	}
	return out
}

// Remove 移除工具，返回是否存在
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[id]; !ok {
		return false
	}
	delete(r.tools, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.logger.Debug("tool removed", "tool_id", id)
	return true
}

// Len 已注册的工具数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// IsInitialized 内置工具是否已注册
func (r *Registry) IsInitialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

// SetInitialized 标记内置工具注册完成
func (r *Registry) SetInitialized(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized = v
}
