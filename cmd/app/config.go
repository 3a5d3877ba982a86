package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"bingo_bot/internal/bot"
	"bingo_bot/internal/repository"
	"bingo_bot/internal/service"
	"bingo_bot/internal/session"
	"bingo_bot/internal/tasks"

	"github.com/spf13/viper"
)

const (
	configPath   = "./"
	configName   = "config"
	configFormat = "yaml"
)

type Config struct {
	Database  repository.Config    `mapstructure:"database"`
	Server    ServerConfig         `mapstructure:"server"`
	Telegram  bot.Config           `mapstructure:"telegram"`
	Sessions  session.Config       `mapstructure:"sessions"`
	Tasks     tasks.Config         `mapstructure:"tasks"`
	Ledger    service.LedgerConfig `mapstructure:"ledger"`
	Wallet    service.WalletConfig `mapstructure:"wallet"`
	Broadcast bot.BroadcastConfig  `mapstructure:"broadcast"`
	MiniApp   MiniAppConfig        `mapstructure:"miniApp"`

	LogLevel string `mapstructure:"logLevel"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type MiniAppConfig struct {
	// Debug skips init-data signature checks. Never enable in production.
	Debug bool `mapstructure:"debug"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdownTimeout", 10*time.Second)

	v.SetDefault("database.driver", repository.DriverSQLite)
	v.SetDefault("database.path", "bingo.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "bingo")

	v.SetDefault("telegram.botToken", "")
	v.SetDefault("telegram.botUsername", "")
	v.SetDefault("telegram.adminId", 0)
	v.SetDefault("telegram.requestTimeout", 10*time.Second)
	v.SetDefault("telegram.pollTimeout", 30*time.Second)
	v.SetDefault("telegram.debug", false)

	v.SetDefault("sessions.backend", "memory")
	v.SetDefault("sessions.ttl", 24*time.Hour)
	v.SetDefault("sessions.redis.addr", "localhost:6379")
	v.SetDefault("sessions.redis.password", "")
	v.SetDefault("sessions.redis.db", 0)
	v.SetDefault("sessions.redis.keyPrefix", "bingo:session:")

	v.SetDefault("tasks.configPath", "tasks_config.json")

	v.SetDefault("ledger.startingBonus", 100)
	v.SetDefault("ledger.referralBonus", 25)
	v.SetDefault("ledger.minWithdrawal", 5000)
	v.SetDefault("ledger.withdrawalOptions", []int{5000, 10000, 20000})

	v.SetDefault("wallet.prefix", "0x")
	v.SetDefault("wallet.minLength", 20)

	v.SetDefault("broadcast.ratePerSecond", 25.0)
	v.SetDefault("broadcast.burst", 5)

	v.SetDefault("miniApp.debug", false)
}

// LoadConfig reads file (or ./config.yaml when empty) on top of the
// defaults and applies APP_* environment overrides. A missing default
// config file is not an error.
func LoadConfig(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(configPath)
		v.SetConfigType(configFormat)
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Telegram.BotToken == "" {
		return errors.New("telegram.botToken is required")
	}
	if c.Telegram.AdminID == 0 {
		return errors.New("telegram.adminId is required")
	}
	if c.Ledger.MinWithdrawal <= 0 {
		return errors.New("ledger.minWithdrawal must be positive")
	}
	return nil
}
