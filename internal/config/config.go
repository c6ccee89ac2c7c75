package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"shopbot/internal/store"
)

// Telegram update delivery modes.
const (
	ModeWebhook = "webhook"
	ModePolling = "polling"
)

// PayPacks lists the top-up packs offered, in coins. Each pack reads its
// link from PAY_<coins>_URL.
var PayPacks = []int64{100, 200, 300, 400, 640, 960}

// Config holds every setting read from the environment.
type Config struct {
	AppEnv           string
	LogLevel         string
	LogFormat        string
	HTTPListenAddr   string
	PublicBasePath   string
	MetricsNamespace string

	BotToken              string
	BotName               string
	AdminIDs              []int64
	TelegramMode          string
	TelegramWebhookSecret string

	StoreDriver   string
	SQLitePath    string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool
	RedisPrefix   string

	ReferralBonus          int64
	StepTTL                time.Duration
	CatalogDuplicateTitles string
	SupportHandle          string
	PaymentURLs            map[int64]string
}

// Load reads configuration from the environment. Call godotenv first if a
// .env file should be honoured.
func Load() (*Config, error) {
	return load(true)
}

// LoadOperator reads the same settings but does not require the bot
// credentials. Operator tooling only talks to the store.
func LoadOperator() (*Config, error) {
	return load(false)
}

func load(requireBot bool) (*Config, error) {
	cfg := &Config{
		AppEnv:                 getEnv("APP_ENV", "development"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "text"),
		HTTPListenAddr:         getEnv("HTTP_LISTEN_ADDR", ":8080"),
		PublicBasePath:         getEnv("PUBLIC_BASE_PATH", ""),
		MetricsNamespace:       getEnv("METRICS_NAMESPACE", "shopbot"),
		BotToken:               strings.TrimSpace(os.Getenv("BOT_TOKEN")),
		BotName:                getEnv("BOT_NAME", "Shop Bot"),
		TelegramMode:           strings.ToLower(getEnv("TELEGRAM_MODE", ModeWebhook)),
		TelegramWebhookSecret:  os.Getenv("TELEGRAM_WEBHOOK_SECRET"),
		StoreDriver:            strings.ToLower(getEnv("STORE_DRIVER", "sqlite")),
		SQLitePath:             getEnv("SQLITE_PATH", "data/shopbot.db"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisPrefix:            getEnv("REDIS_PREFIX", "shopbot:"),
		CatalogDuplicateTitles: getEnv("CATALOG_DUPLICATE_TITLES", "reject"),
		SupportHandle:          os.Getenv("SUPPORT_HANDLE"),
		PaymentURLs:            make(map[int64]string, len(PayPacks)),
	}

	var errs []error
	if requireBot && cfg.BotToken == "" {
		errs = append(errs, errors.New("BOT_TOKEN is required"))
	}

	ids, err := parseIDs(os.Getenv("ADMIN_IDS"))
	if err != nil {
		errs = append(errs, fmt.Errorf("ADMIN_IDS: %w", err))
	} else if requireBot && len(ids) == 0 {
		errs = append(errs, errors.New("ADMIN_IDS must list at least one user id"))
	}
	cfg.AdminIDs = ids

	switch cfg.TelegramMode {
	case ModeWebhook, ModePolling:
	default:
		errs = append(errs, fmt.Errorf("TELEGRAM_MODE must be %q or %q", ModeWebhook, ModePolling))
	}

	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.RedisTLS, err = getBool("REDIS_TLS", false); err != nil {
		errs = append(errs, err)
	}
	bonus, err := getInt("REFERRAL_BONUS", 1)
	if err != nil {
		errs = append(errs, err)
	} else if bonus < 0 {
		errs = append(errs, errors.New("REFERRAL_BONUS must not be negative"))
	}
	cfg.ReferralBonus = int64(bonus)
	if cfg.StepTTL, err = getDuration("CONVO_STEP_TTL", 0); err != nil {
		errs = append(errs, err)
	}

	if cfg.StoreDriver == "postgres" && cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
	}

	for _, coins := range PayPacks {
		cfg.PaymentURLs[coins] = strings.TrimSpace(os.Getenv(fmt.Sprintf("PAY_%d_URL", coins)))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Store returns the record store settings.
func (c *Config) Store() store.Config {
	return store.Config{
		Driver:      c.StoreDriver,
		SQLitePath:  c.SQLitePath,
		DatabaseURL: c.DatabaseURL,
		Redis: store.RedisConfig{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
			UseTLS:   c.RedisTLS,
			Prefix:   c.RedisPrefix,
		},
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

// parseIDs reads a comma separated list of user ids.
func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid user id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
