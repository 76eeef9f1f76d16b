package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Cron       CronConfig       `mapstructure:"cron"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	QB         QBConfig         `mapstructure:"qb"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Onboarding OnboardingConfig `mapstructure:"onboarding"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	TokenRefresh string `mapstructure:"token_refresh"`
	DailySync    string `mapstructure:"daily_sync"`
}

type SchedulerConfig struct {
	CatchupWindow time.Duration `mapstructure:"catchup_window"`
}

type QBConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	OAuthBaseURL string        `mapstructure:"oauth_base_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PageSize     int           `mapstructure:"page_size"`
	PagePause    time.Duration `mapstructure:"page_pause"`
}

type SyncConfig struct {
	DailyEntities      []string      `mapstructure:"daily_entities"`
	OnboardingEntities []string      `mapstructure:"onboarding_entities"`
	ReferenceEntities  []string      `mapstructure:"reference_entities"`
	OnboardingStart    string        `mapstructure:"onboarding_start"`
	CallTimeout        time.Duration `mapstructure:"call_timeout"`
}

type OnboardingConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

type NotifyConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("QBS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.token_refresh", "@every 1h")
	v.SetDefault("cron.daily_sync", "0 0 3 * * *")
	v.SetDefault("scheduler.catchup_window", "6h")
	v.SetDefault("qb.base_url", "https://quickbooks.api.intuit.com")
	v.SetDefault("qb.oauth_base_url", "https://oauth.platform.intuit.com")
	v.SetDefault("qb.timeout", "30s")
	v.SetDefault("qb.page_size", 1000)
	v.SetDefault("qb.page_pause", "300ms")
	v.SetDefault("sync.daily_entities", []string{
		"Invoice", "SalesReceipt", "Payment", "CreditMemo", "Purchase", "Bill", "BillPayment",
	})
	v.SetDefault("sync.onboarding_entities", []string{
		"Invoice", "SalesReceipt", "Payment", "CreditMemo", "RefundReceipt",
		"Purchase", "Bill", "BillPayment", "VendorCredit", "Check",
		"Deposit", "Transfer", "JournalEntry", "TimeActivity", "PurchaseOrder",
	})
	v.SetDefault("sync.reference_entities", []string{
		"Account", "Class", "Customer", "Employee", "Item", "Vendor",
	})
	v.SetDefault("sync.onboarding_start", "2020-01-01T00:00:00Z")
	v.SetDefault("sync.call_timeout", "2m")
	v.SetDefault("onboarding.workers", 2)
	v.SetDefault("onboarding.queue_size", 16)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "15s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.max_delay", "5m")
	v.SetDefault("notify.timeout", "10s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
