// Package config содержит логику чтения конфигурации бота staffpoints.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации бота staffpoints.
type Config struct {
	BotToken    string  `env:"BOT_TOKEN"`
	DatabaseURI string  `env:"DATABASE_URI"`
	OpsAddress  string  `env:"OPS_ADDRESS"`
	OpsToken    string  `env:"OPS_TOKEN"`
	Admins      []int64 `env:"ADMINS" envSeparator:","`
	SuperAdmins []int64 `env:"SUPERADMINS" envSeparator:","`

	// AdminNames отображает идентификатор администратора в имя для
	// истории операций, формат: "123:Иванов,456:Петров".
	AdminNames map[int64]string `env:"ADMIN_NAMES" envSeparator:"," envKeyValSeparator:":"`

	// DateCapacity — лимит одобренных заявок раннего ухода на одну дату.
	DateCapacity int `env:"DATE_CAPACITY"`
	// HourCost — стоимость одного часа раннего ухода в баллах.
	HourCost int `env:"HOUR_COST"`

	PriceText string `env:"PRICE_TEXT"`
	RulesText string `env:"RULES_TEXT"`
}

// ScoreEntry задаёт причину начисления и её стоимость в баллах.
type ScoreEntry struct {
	Reason string
	Points int
}

// ConsultantScores возвращает таблицу начислений для консультантов.
func ConsultantScores() []ScoreEntry {
	return []ScoreEntry{
		{Reason: "Продажа аксессуаров", Points: 10},
		{Reason: "Положительный отзыв", Points: 20},
		{Reason: "Помощь коллеге", Points: 15},
		{Reason: "Переработка", Points: 30},
	}
}

// SupportScores возвращает таблицу начислений для УСМ.
func SupportScores() []ScoreEntry {
	return []ScoreEntry{
		{Reason: "Наставничество", Points: 25},
		{Reason: "Положительный отзыв", Points: 20},
		{Reason: "Переработка", Points: 30},
	}
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envDatabaseURI := cfg.DatabaseURI
	envOpsAddress := cfg.OpsAddress
	envBotToken := cfg.BotToken

	flag.StringVar(&cfg.BotToken, "t", "", "telegram bot token")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.OpsAddress, "o", "localhost:8080", "address and port for ops HTTP server")
	flag.Parse()

	if envBotToken != "" {
		cfg.BotToken = envBotToken
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envOpsAddress != "" {
		cfg.OpsAddress = envOpsAddress
	}

	if cfg.OpsAddress == "" {
		cfg.OpsAddress = "localhost:8080"
	}
	if cfg.DateCapacity <= 0 {
		cfg.DateCapacity = 3
	}
	if cfg.HourCost <= 0 {
		cfg.HourCost = 150
	}
	if cfg.PriceText == "" {
		cfg.PriceText = "Прайс-лист пока не заполнен."
	}
	if cfg.RulesText == "" {
		cfg.RulesText = "Правила пока не заполнены."
	}

	return cfg, nil
}

// IsAdmin сообщает, входит ли идентификатор в список администраторов.
func (c *Config) IsAdmin(id int64) bool {
	for _, a := range c.Admins {
		if a == id {
			return true
		}
	}
	return false
}

// IsSuperAdmin сообщает, входит ли идентификатор в список супер-администраторов.
func (c *Config) IsSuperAdmin(id int64) bool {
	for _, a := range c.SuperAdmins {
		if a == id {
			return true
		}
	}
	return false
}
