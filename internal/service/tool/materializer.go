package tool

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/ashwinyue/next-bot/internal/model"
)

// customLoader 按 bot 可见性加载自定义工具记录
type customLoader interface {
	FindActiveCustomForBot(ctx context.Context, id, botID string) (*model.Tool, error)
}

// materializer 按需物化不在注册表中的自定义工具
// 结果按 (bot, tool) 缓存，同一 key 的并发请求只查询一次
type materializer struct {
	loader  customLoader
	factory *CustomToolFactory
	cache   *gocache.Cache
	group   singleflight.Group
	enabled bool
}

func newMaterializer(loader customLoader, factory *CustomToolFactory, ttl time.Duration) *materializer {
	m := &materializer{loader: loader, factory: factory, enabled: ttl > 0}
	if m.enabled {
		m.cache = gocache.New(ttl, 2*ttl)
	}
	return m
}

func cacheKey(botID, toolID string) string {
	return botID + ":" + toolID
}

// resolve 返回 bot 可见的自定义工具定义，记录不存在时返回仓储层的错误
func (m *materializer) resolve(ctx context.Context, toolID, botID string) (*Definition, error) {
	key := cacheKey(botID, toolID)
	if m.enabled {
		if v, ok := m.cache.Get(key); ok {
			return v.(*Definition), nil
		}
	}

	v, err, _ := m.group.Do(key, func() (interface{}, error) {
		row, err := m.loader.FindActiveCustomForBot(ctx, toolID, botID)
		if err != nil {
			return nil, err
		}
		def, err := m.factory.CreateCustomToolDefinition(row)
		if err != nil {
			return nil, err
		}
		m.store(botID, def)
		return def, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Definition), nil
}

// store 预先写入缓存
func (m *materializer) store(botID string, def *Definition) {
	if m.enabled {
		m.cache.SetDefault(cacheKey(botID, def.ID), def)
	}
}

// invalidate 清除某个工具在所有 bot 下的缓存
func (m *materializer) invalidate(toolID string) {
	if !m.enabled {
		return
	}
	suffix := ":" + toolID
	for key := range m.cache.Items() {
		if strings.HasSuffix(key, suffix) {
			m.cache.Delete(key)
		}
	}
}
