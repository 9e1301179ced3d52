// Package config содержит логику чтения конфигурации бота Digi Store.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

// ErrBotTokenMissing возвращается, если при запуске не задан токен бота.
var ErrBotTokenMissing = errors.New("bot token is not set")

// PremiumTier описывает один период подписки Telegram Premium.
type PremiumTier struct {
	Name     string
	PriceRUB float64
}

// Config содержит параметры конфигурации бота Digi Store.
type Config struct {
	BotToken       string `env:"BOT_TOKEN"`
	CryptoBotToken string `env:"CRYPTOBOT_TOKEN"`
	DatabaseURI    string `env:"DATABASE_URI"`
	AdminIDs       string `env:"ADMIN_IDS"`
	CardNumber     string `env:"CARD_NUMBER"`
	OpsAddress     string `env:"OPS_ADDRESS"`

	StarRate       float64 `env:"STAR_RATE"`
	USDRate        float64 `env:"USD_RATE"`
	MinExchangeRUB float64 `env:"MIN_EXCHANGE_RUB"`

	SupportUser       string `env:"SUPPORT_USER"`
	ReputationChannel string `env:"REPUTATION_CHANNEL"`
	NewsChannel       string `env:"NEWS_CHANNEL"`

	// PremiumTiers — прайс подписки по ключам периода ("3m", "6m", "1y").
	PremiumTiers map[string]PremiumTier
}

// PremiumPeriods перечисляет периоды подписки в порядке показа в меню.
var PremiumPeriods = []string{"3m", "6m", "1y"}

func defaultPremiumTiers() map[string]PremiumTier {
	return map[string]PremiumTier{
		"3m": {Name: "3 месяца", PriceRUB: 1124.11},
		"6m": {Name: "6 месяцев", PriceRUB: 1498.81},
		"1y": {Name: "1 год", PriceRUB: 2716.59},
	}
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envBotToken := cfg.BotToken
	envCryptoToken := cfg.CryptoBotToken
	envDatabaseURI := cfg.DatabaseURI
	envAdminIDs := cfg.AdminIDs
	envCardNumber := cfg.CardNumber
	envOpsAddress := cfg.OpsAddress

	flag.StringVar(&cfg.BotToken, "t", "", "telegram bot token")
	flag.StringVar(&cfg.CryptoBotToken, "c", "", "CryptoBot API token")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.AdminIDs, "a", "", "comma-separated admin telegram ids")
	flag.StringVar(&cfg.CardNumber, "card", "", "card number for manual transfers")
	flag.StringVar(&cfg.OpsAddress, "ops", "localhost:8091", "address for ops HTTP server")

	flag.Parse()

	if envBotToken != "" {
		cfg.BotToken = envBotToken
	}
	if envCryptoToken != "" {
		cfg.CryptoBotToken = envCryptoToken
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envAdminIDs != "" {
		cfg.AdminIDs = envAdminIDs
	}
	if envCardNumber != "" {
		cfg.CardNumber = envCardNumber
	}
	if envOpsAddress != "" {
		cfg.OpsAddress = envOpsAddress
	}

	if cfg.BotToken == "" {
		return nil, ErrBotTokenMissing
	}

	if cfg.StarRate <= 0 {
		cfg.StarRate = 1.5
	}
	if cfg.USDRate <= 0 {
		cfg.USDRate = 85.0
	}
	if cfg.MinExchangeRUB <= 0 {
		cfg.MinExchangeRUB = 100
	}
	if cfg.OpsAddress == "" {
		cfg.OpsAddress = "localhost:8091"
	}
	if cfg.SupportUser == "" {
		cfg.SupportUser = "swordSar"
	}
	if cfg.PremiumTiers == nil {
		cfg.PremiumTiers = defaultPremiumTiers()
	}

	return cfg, nil
}

// AdminList разбирает список идентификаторов администраторов из конфигурации.
// Некорректные элементы списка отбрасываются.
func (c *Config) AdminList() []int64 {
	var ids []int64
	for _, part := range strings.Split(c.AdminIDs, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
