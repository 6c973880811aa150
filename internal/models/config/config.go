package config

import "time"

// AppConfig глобальная конфигурация приложения
var AppConfig *Config

// Config основной конфиг
type Config struct {
	Environment string
	HTTP        HTTPConfig
	Bot         BotConfig
	Database    DatabaseConfig
	Storage     StorageConfig
	Settlement  SettlementConfig
}

type HTTPConfig struct {
	Port string
}

type BotConfig struct {
	Token    string
	Debug    bool
	AdminIDs []int64 // только администраторы могут отмечать посещаемость
}

// Enabled - бот запускается только при заданном токене
func (b BotConfig) Enabled() bool {
	return b.Token != ""
}

func (b BotConfig) IsAdmin(id int64) bool {
	for _, adminID := range b.AdminIDs {
		if adminID == id {
			return true
		}
	}
	return false
}

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type StorageConfig struct {
	Driver string
}

type SettlementConfig struct {
	// с какого по счету уважительного пропуска его можно списывать
	ExcusedChargeThreshold int
	Timeout                time.Duration
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
