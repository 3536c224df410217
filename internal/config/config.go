package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	SettleIntervalS   int     `env:"SETTLE_INTERVAL_S" envDefault:"5"`
	SettleDelayMS     int     `env:"SETTLE_DELAY_MS" envDefault:"1000"`
	SettleSuccessBias float64 `env:"SETTLE_SUCCESS_BIAS" envDefault:"0.7"`

	// Event relay is disabled when AMQPURL is empty.
	AMQPURL        string `env:"AMQP_URL"`
	AMQPExchange   string `env:"AMQP_EXCHANGE" envDefault:"payments.events"`
	RelayIntervalS int    `env:"RELAY_INTERVAL_S" envDefault:"2"`
	RelayBatch     int    `env:"RELAY_BATCH" envDefault:"100"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
