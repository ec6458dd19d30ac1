package config

import "github.com/caarlos0/env/v11"

type ServerConfig struct {
	PostgresDSN string `env:"POSTGRES_DSN,required,notEmpty"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	JWTSecret     string `env:"JWT_SECRET,required,notEmpty"`
	TokenTTLHours int    `env:"TOKEN_TTL_HOURS" envDefault:"720"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`

	StartingBalance int64  `env:"STARTING_BALANCE" envDefault:"1000000"`
	DefaultCurrency string `env:"DEFAULT_CURRENCY" envDefault:"₽"`

	BonusAmount     int64  `env:"BONUS_AMOUNT" envDefault:"1000000"`
	BonusDailyLimit int    `env:"BONUS_DAILY_LIMIT" envDefault:"3"`
	QuotaTimezone   string `env:"QUOTA_TIMEZONE" envDefault:"UTC"`

	LeaderboardLimit int `env:"LEADERBOARD_LIMIT" envDefault:"50"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
