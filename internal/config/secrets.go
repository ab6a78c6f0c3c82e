package config

import (
	"github.com/caarlos0/env/v11"
)

// Secrets are credentials the config file must not carry. They are read
// from the process environment (optionally seeded from a .env file by
// main). All fields are optional; a missing token disables its channel.
type Secrets struct {
	LineChannelToken string `env:"LINE_CHANNEL_TOKEN"`
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	RedisPassword    string `env:"REDIS_PASSWORD"`
}

func LoadSecrets() (Secrets, error) {
	var s Secrets
	if err := env.Parse(&s); err != nil {
		return Secrets{}, err
	}
	return s, nil
}
