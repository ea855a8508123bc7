package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации сервиса согласований.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Slack    SlackConfig    `mapstructure:"slack"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SlackConfig содержит креды и параметры доступа к Slack Web API.
// Токены приходят из ENV: SLACK_BOT_TOKEN и SLACK_SIGNING_SECRET.
type SlackConfig struct {
	BotToken      string        `mapstructure:"bot_token"`
	SigningSecret string        `mapstructure:"signing_secret"`
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`

	// Исходящий лимит к Web API (chat.postMessage Tier 5+ спокойно держит 50 rps,
	// нам хватает консервативного значения по умолчанию)
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// StoreConfig выбирает бэкенд хранилища заявок и политику вытеснения.
type StoreConfig struct {
	// memory | redis | postgres
	Backend string `mapstructure:"backend"`

	// Решенные заявки (approved/rejected) вытесняются после ResolvedTTL.
	// Pending-заявки не вытесняются никогда.
	ResolvedTTL   time.Duration `mapstructure:"resolved_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// RedisConfig описывает подключение к Redis (альтернативный бэкенд Store).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig описывает подключение к PostgreSQL (durable-бэкенд Store).
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: SERVER_PORT=9000 перекроет server.port,
	// SLACK_BOT_TOKEN перекроет slack.bot_token
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if cfg.Slack.BotToken == "" {
		return nil, errors.New("slack bot token is required (SLACK_BOT_TOKEN)")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("slack.base_url", "https://slack.com/api")
	v.SetDefault("slack.timeout", 10*time.Second)
	v.SetDefault("slack.rate_limit", 20.0)
	v.SetDefault("slack.rate_burst", 10)
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.resolved_ttl", 24*time.Hour)
	v.SetDefault("store.sweep_interval", 10*time.Minute)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}
