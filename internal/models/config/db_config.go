package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

// DatabaseConfig конфигурация БД
type DatabaseConfig struct {
	Host         string
	Port         int
	Username     string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int

	// на подключение и миграцию при старте
	StartupTimeout time.Duration
}

// DSN строка подключения для lib/pq
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Name, d.SSLMode,
	)
}

// Load загружает конфигурацию
func Load() error {
	// .env необязателен, в проде переменные приходят из окружения
	_ = godotenv.Load()

	cfg, err := FromEnv()
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

// FromEnv собирает конфиг из переменных окружения без записи в AppConfig.
func FromEnv() (*Config, error) {
	env := getEnv("APP_ENV", "development")

	cfg := &Config{
		Environment: env,
		HTTP: HTTPConfig{
			Port: getEnv("HTTP_PORT", "8080"),
		},
		Bot: BotConfig{
			Token:    getEnv("BOT_TOKEN", ""),
			Debug:    getEnvAsBool("BOT_DEBUG", env != "production"),
			AdminIDs: parseAdminIDs(getEnv("ADMIN_IDS", "")),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnvAsInt("DB_PORT", 5432),
			Username:       getEnv("DB_USER", ""),
			Password:       getEnv("DB_PASSWORD", ""),
			Name:           getEnv("DB_NAME", "tuition"),
			SSLMode:        getEnv("DB_SSLMODE", getSSLMode(env)),
			MaxOpenConns:   getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			StartupTimeout: getEnvAsDuration("DB_STARTUP_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(getEnv("STORAGE_DRIVER", StoragePostgres)),
		},
		Settlement: SettlementConfig{
			ExcusedChargeThreshold: getEnvAsInt("EXCUSED_CHARGE_THRESHOLD", 4),
			Timeout:                getEnvAsDuration("SETTLEMENT_TIMEOUT", 10*time.Second),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate проверяет обязательные параметры
func validate(cfg *Config) error {
	var err error

	switch cfg.Storage.Driver {
	case StoragePostgres:
		if cfg.Database.Username == "" {
			err = multierr.Append(err, errors.New("DB_USER is required"))
		}
		if cfg.Database.Password == "" && cfg.IsProduction() {
			err = multierr.Append(err, errors.New("DB_PASSWORD is required in production"))
		}
		if cfg.Database.StartupTimeout <= 0 {
			err = multierr.Append(err, errors.New("DB_STARTUP_TIMEOUT must be positive"))
		}
	case StorageMemory:
		if cfg.IsProduction() {
			err = multierr.Append(err, errors.New("STORAGE_DRIVER=memory is not allowed in production"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.Storage.Driver))
	}

	if cfg.Bot.Enabled() && len(cfg.Bot.AdminIDs) == 0 {
		err = multierr.Append(err, errors.New("ADMIN_IDS is required when BOT_TOKEN is set"))
	}

	if cfg.Settlement.ExcusedChargeThreshold < 1 {
		err = multierr.Append(err, errors.New("EXCUSED_CHARGE_THRESHOLD must be at least 1"))
	}

	if cfg.Settlement.Timeout <= 0 {
		err = multierr.Append(err, errors.New("SETTLEMENT_TIMEOUT must be positive"))
	}

	if err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// getSSLMode возвращает режим SSL в зависимости от окружения
func getSSLMode(env string) string {
	if env == "production" {
		return "require" // В продакшене всегда SSL
	}
	return "disable"
}

// parseAdminIDs парсит список ID администраторов
func parseAdminIDs(ids string) []int64 {
	if ids == "" {
		return []int64{}
	}

	var result []int64
	for _, idStr := range strings.Split(ids, ",") {
		if id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64); err == nil {
			result = append(result, id)
		}
	}
	return result
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
