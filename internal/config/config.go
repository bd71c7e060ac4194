package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host      string // 监听地址，默认 "0.0.0.0"
	Port      int    // 监听端口，默认 8080
	PublicURL string // 对外可达的基础 URL，用于通知邮件内嵌表单的提交地址
}

// InboundConfig 定义回信收取链路的配置
type InboundConfig struct {
	Domain     string // 站点主域名，回信地址落在 inbound.<Domain> 子域上
	BindAddr   string // 入站 SMTP 监听地址，默认 ":25"，置空禁用 SMTP 入口
	MaxSize    int64  // 单封入站邮件最大字节数，默认 10MB
	ArchiveDir string // 入站邮件原文归档目录，置空禁用归档
}

// OutboundConfig 定义外发通知邮件使用的 SMTP 中继配置
type OutboundConfig struct {
	Host     string // 中继主机，留空时外发通知被禁用（只记日志）
	Port     int    // 中继端口，默认 587
	Username string // SMTP 认证用户名
	Password string // SMTP 认证密码
	From     string // 通知信封与 From 头使用的发件地址
	FromName string // From 头显示名，默认 "HomeMatch"
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 缓存服务配置
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// JWTConfig 定义 JWT 认证相关配置
type JWTConfig struct {
	Secret        string        // JWT 签名密钥，必须至少 32 字符
	Issuer        string        // JWT 签发者标识，默认 "homematch"
	AccessExpiry  time.Duration // 访问令牌有效期，默认 15 分钟
	RefreshExpiry time.Duration // 刷新令牌有效期，默认 7 天
}

// OTPConfig 定义邮箱验证码登录的参数
type OTPConfig struct {
	Length      int           // 验证码位数，默认 6
	TTL         time.Duration // 验证码有效期，默认 10 分钟
	MaxAttempts int           // 单个验证码允许的校验失败次数，默认 5
	SendPerHour int           // 单邮箱每小时可请求的验证码数量，默认 5
}

// ChatConfig 定义会话消息的业务限制
type ChatConfig struct {
	MaxMessageLength int // 单条站内/表单回复的最大字符数，默认 5000
	PreviewLength    int // 会话列表中最近消息摘要的长度，默认 100
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server   ServerConfig   // HTTP 服务器配置
	Inbound  InboundConfig  // 入站邮件配置
	Outbound OutboundConfig // 外发 SMTP 配置
	CORS     CORSConfig     // 跨域配置
	Log      LogConfig      // 日志配置
	Database DatabaseConfig // 数据库配置
	Redis    RedisConfig    // Redis 配置
	JWT      JWTConfig      // JWT 认证配置
	OTP      OTPConfig      // 邮箱验证码配置
	Chat     ChatConfig     // 会话消息配置
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: HOMEMATCH_
// 例如: HOMEMATCH_SERVER_HOST, HOMEMATCH_JWT_SECRET
//
// .env 文件位置：
//   - 当前目录的 .env
//   - 父目录的 .env（如果在 backend/ 子目录中运行）
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("homematch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.public_url", "http://localhost:8080")
	viper.SetDefault("inbound.domain", "homematch.local")
	viper.SetDefault("inbound.bind_addr", ":25")
	viper.SetDefault("inbound.max_size", 10*1024*1024)
	viper.SetDefault("inbound.archive_dir", "")
	viper.SetDefault("outbound.host", "")
	viper.SetDefault("outbound.port", 587)
	viper.SetDefault("outbound.username", "")
	viper.SetDefault("outbound.password", "")
	viper.SetDefault("outbound.from", "no-reply@homematch.local")
	viper.SetDefault("outbound.from_name", "HomeMatch")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.issuer", "homematch")
	viper.SetDefault("jwt.access_expiry", "15m")
	viper.SetDefault("jwt.refresh_expiry", "168h")
	viper.SetDefault("otp.length", 6)
	viper.SetDefault("otp.ttl", "10m")
	viper.SetDefault("otp.max_attempts", 5)
	viper.SetDefault("otp.send_per_hour", 5)
	viper.SetDefault("chat.max_message_length", 5000)
	viper.SetDefault("chat.preview_length", 100)

	inboundDomain := strings.ToLower(strings.TrimSpace(viper.GetString("inbound.domain")))
	if inboundDomain == "" {
		return nil, fmt.Errorf("inbound.domain must not be empty")
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	accessExpiry, err := time.ParseDuration(viper.GetString("jwt.access_expiry"))
	if err != nil {
		accessExpiry = 15 * time.Minute
	}

	refreshExpiry, err := time.ParseDuration(viper.GetString("jwt.refresh_expiry"))
	if err != nil {
		refreshExpiry = 7 * 24 * time.Hour
	}

	otpTTL, err := time.ParseDuration(viper.GetString("otp.ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid otp.ttl: %w", err)
	}

	otpLength := viper.GetInt("otp.length")
	if otpLength < 4 || otpLength > 10 {
		return nil, fmt.Errorf("otp.length must be between 4 and 10")
	}

	maxAttempts := viper.GetInt("otp.max_attempts")
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	maxMessageLength := viper.GetInt("chat.max_message_length")
	if maxMessageLength <= 0 {
		maxMessageLength = 5000
	}

	previewLength := viper.GetInt("chat.preview_length")
	if previewLength <= 0 {
		previewLength = 100
	}

	jwtSecret := viper.GetString("jwt.secret")

	// 安全检查：禁止使用默认的 JWT secret
	if jwtSecret == "change-me-in-production" {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret cannot be the default value. Please set HOMEMATCH_JWT_SECRET environment variable")
	}

	// JWT secret 必须至少 32 字符
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret must be at least 32 characters long")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:      viper.GetString("server.host"),
			Port:      viper.GetInt("server.port"),
			PublicURL: strings.TrimRight(viper.GetString("server.public_url"), "/"),
		},
		Inbound: InboundConfig{
			Domain:     inboundDomain,
			BindAddr:   viper.GetString("inbound.bind_addr"),
			MaxSize:    viper.GetInt64("inbound.max_size"),
			ArchiveDir: viper.GetString("inbound.archive_dir"),
		},
		Outbound: OutboundConfig{
			Host:     viper.GetString("outbound.host"),
			Port:     viper.GetInt("outbound.port"),
			Username: viper.GetString("outbound.username"),
			Password: viper.GetString("outbound.password"),
			From:     viper.GetString("outbound.from"),
			FromName: viper.GetString("outbound.from_name"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:        jwtSecret,
			Issuer:        viper.GetString("jwt.issuer"),
			AccessExpiry:  accessExpiry,
			RefreshExpiry: refreshExpiry,
		},
		OTP: OTPConfig{
			Length:      otpLength,
			TTL:         otpTTL,
			MaxAttempts: maxAttempts,
			SendPerHour: viper.GetInt("otp.send_per_hour"),
		},
		Chat: ChatConfig{
			MaxMessageLength: maxMessageLength,
			PreviewLength:    previewLength,
		},
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env（用于从 backend/ 子目录运行的情况）
//
// 如果文件不存在，静默失败（.env 是可选的）；
// 已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
