package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Business BusinessConfig `mapstructure:"business"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql | postgres
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	BookingEvents string `mapstructure:"booking_events"`
	PaymentEvents string `mapstructure:"payment_events"`
}

// GatewayConfig 外部支付网关（下单/签名服务）
type GatewayConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	KeyID          string        `mapstructure:"key_id"`
	KeySecret      string        `mapstructure:"key_secret"`
	Currency       string        `mapstructure:"currency"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

type BusinessConfig struct {
	OrderExpireMinutes        int `mapstructure:"order_expire_minutes"`
	VerificationStaleMinutes  int `mapstructure:"verification_stale_minutes"`
	MaxRetryCount             int `mapstructure:"max_retry_count"`
	ReconcileIntervalSeconds  int `mapstructure:"reconcile_interval_seconds"`
	OverdueScanIntervalSecond int `mapstructure:"overdue_scan_interval_seconds"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LoadConfig 加载配置文件，环境变量 HOSTEL_<SECTION>_<KEY> 覆盖文件中的值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("hostel")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "dev")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("kafka.topic.booking_events", "hostel.booking")
	v.SetDefault("kafka.topic.payment_events", "hostel.payment")
	v.SetDefault("gateway.currency", "INR")
	v.SetDefault("gateway.timeout", 5*time.Second)
	v.SetDefault("gateway.max_retries", 3)
	v.SetDefault("gateway.initial_backoff", 200*time.Millisecond)
	v.SetDefault("business.order_expire_minutes", 30)
	v.SetDefault("business.verification_stale_minutes", 5)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.reconcile_interval_seconds", 30)
	v.SetDefault("business.overdue_scan_interval_seconds", 300)
	v.SetDefault("log.level", "info")
}
