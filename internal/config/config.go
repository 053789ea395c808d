package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App         AppConfig
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	Security    SecurityConfig
	Tools       ToolsConfig
	Google      OAuthConfig
	GoHighLevel GoHighLevelConfig
}

// AppConfig 应用配置
type AppConfig struct {
	Name        string
	Environment string
	Version     string
	Debug       bool
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string
	Port         int
	Mode         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int  // 秒
	MaxIdleTime  int  // 秒
	SlowQueryMs  int  // 慢查询阈值
	AutoMigrate  bool // 启动时迁移表结构
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	// EncryptionKey 凭证加密密钥，截断或补齐到 32 字节
	EncryptionKey string
	// JWTSecret 为空时使用 X-User-ID 头识别用户
	JWTSecret string
}

// ToolsConfig 工具执行配置
type ToolsConfig struct {
	CustomToolTimeout   int  // 自定义工具默认超时（秒）
	SlotInterval        int  // 可用时段步长（分钟）
	BookingLock         bool // 预约类函数是否启用 (bot, tool) 级别的咨询锁
	BookingLockTTL      int  // 咨询锁过期时间（秒）
	MaterializeCacheTTL int  // bot 私有自定义工具的物化缓存（秒）
}

// OAuthConfig OAuth 客户端配置
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	BaseURL      string
	TokenURL     string
}

// GoHighLevelConfig GoHighLevel 配置
type GoHighLevelConfig struct {
	OAuthConfig `mapstructure:",squash"`
	APIVersion  string
	RateLimit   float64 // 每秒请求数
}

// Load 加载配置
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// 环境变量
	v.SetEnvPrefix("NEXT_BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// GetAddr 获取服务器地址
func (c *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAddr 获取 Redis 地址
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CustomToolTimeoutDuration 自定义工具默认超时
func (c *ToolsConfig) CustomToolTimeoutDuration() time.Duration {
	return time.Duration(c.CustomToolTimeout) * time.Second
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "next-bot")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.debug", false)

	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "next_bot")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.maxLifetime", 300)
	v.SetDefault("database.maxIdleTime", 60)
	v.SetDefault("database.slowQueryMs", 200)
	v.SetDefault("database.autoMigrate", true)

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// Security
	v.SetDefault("security.encryptionKey", "")
	v.SetDefault("security.jwtSecret", "")

	// Tools
	v.SetDefault("tools.customToolTimeout", 30)
	v.SetDefault("tools.slotInterval", 30)
	v.SetDefault("tools.bookingLock", false)
	v.SetDefault("tools.bookingLockTTL", 30)
	v.SetDefault("tools.materializeCacheTTL", 300)

	// Google
	v.SetDefault("google.baseUrl", "https://www.googleapis.com/calendar/v3")
	v.SetDefault("google.tokenUrl", "https://oauth2.googleapis.com/token")

	// GoHighLevel
	v.SetDefault("gohighlevel.baseUrl", "https://services.leadconnectorhq.com")
	v.SetDefault("gohighlevel.tokenUrl", "https://services.leadconnectorhq.com/oauth/token")
	v.SetDefault("gohighlevel.apiVersion", "2021-04-15")
	v.SetDefault("gohighlevel.rateLimit", 10)
}
