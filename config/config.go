package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode"` // release, development
}

// 续期方式
const (
	RenewalFromNow = "from_now" // 从回调处理时刻起算
	RenewalStack   = "stack"    // 从当前到期时间顺延
)

type BillingConfig struct {
	Currency               string                `mapstructure:"currency"`
	PeriodDays             int                   `mapstructure:"period_days"`
	RenewalMode            string                `mapstructure:"renewal_mode"`
	CheckoutTimeoutSeconds int                   `mapstructure:"checkout_timeout_seconds"`
	ReferencePrefix        string                `mapstructure:"reference_prefix"`
	OrphanQueue            string                `mapstructure:"orphan_queue"`
	LockExpirySeconds      int                   `mapstructure:"lock_expiry_seconds"`
	Plans                  map[string]PlanConfig `mapstructure:"plans"`
}

type PlanConfig struct {
	Name       string `mapstructure:"name"`
	PriceMinor int64  `mapstructure:"price_minor"`
	Currency   string `mapstructure:"currency"`
}

// Period 一个计费周期
func (b BillingConfig) Period() time.Duration {
	days := b.PeriodDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

// CheckoutTimeout 下单请求超时
func (b BillingConfig) CheckoutTimeout() time.Duration {
	if b.CheckoutTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(b.CheckoutTimeoutSeconds) * time.Second
}

// LockExpiry 回调处理锁的过期时间
func (b BillingConfig) LockExpiry() time.Duration {
	if b.LockExpirySeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(b.LockExpirySeconds) * time.Second
}

type ProvidersConfig struct {
	GatewayA GatewayAConfig `mapstructure:"gateway_a"`
	GatewayB GatewayBConfig `mapstructure:"gateway_b"`
}

type GatewayAConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	KeyID          string `mapstructure:"key_id"`
	KeySecret      string `mapstructure:"key_secret"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type GatewayBConfig struct {
	Enabled         bool              `mapstructure:"enabled"`
	MerchantID      string            `mapstructure:"merchant_id"`
	BaseURL         string            `mapstructure:"base_url"`
	PayPath         string            `mapstructure:"pay_path"`
	CallbackPath    string            `mapstructure:"callback_path"`
	RedirectURL     string            `mapstructure:"redirect_url"`
	CallbackURL     string            `mapstructure:"callback_url"`
	SaltKeys        map[string]string `mapstructure:"salt_keys"`
	ActiveSaltIndex string            `mapstructure:"active_salt_index"`
	TimeoutSeconds  int               `mapstructure:"timeout_seconds"`
}

type SchedulerConfig struct {
	ExpireSpec string `mapstructure:"expire_spec"`
}

// ArchiveConfig 回调原文归档（阿里云 OSS），未配置时不归档
type ArchiveConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	Prefix          string `mapstructure:"prefix"`
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("billing.currency", "INR")
	v.SetDefault("billing.period_days", 30)
	v.SetDefault("billing.renewal_mode", RenewalFromNow)
	v.SetDefault("billing.checkout_timeout_seconds", 10)
	v.SetDefault("billing.reference_prefix", "mdr_")
	v.SetDefault("billing.orphan_queue", "billing:orphaned_orders")
	v.SetDefault("billing.lock_expiry_seconds", 15)
	v.SetDefault("providers.gateway_b.pay_path", "/pg/v1/pay")
	v.SetDefault("scheduler.expire_spec", "0 */15 * * * *")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
