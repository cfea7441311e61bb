package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL   string `env:"DATABASE_URL,required"`
	GatewayURL    string `env:"GATEWAY_URL,required"`
	GatewayAPIKey string `env:"GATEWAY_API_KEY,required"`
	BlockchainKey string `env:"BLOCKCHAIN_KEY" envDefault:"gateway"`

	DepositFundsLocked    bool   `env:"DEPOSIT_FUNDS_LOCKED" envDefault:"false"`
	ManualDepositApproval bool   `env:"MANUAL_DEPOSIT_APPROVAL" envDefault:"false"`
	InvoiceExpiresHours   int    `env:"INVOICE_EXPIRES_HOURS" envDefault:"24"`
	BeneficiaryPrefix     string `env:"BENEFICIARY_PREFIX" envDefault:"gateway"`

	PollIntervalS int `env:"POLL_INTERVAL_S" envDefault:"30"`

	KafkaBrokers    string `env:"KAFKA_BROKERS"`
	KafkaEventTopic string `env:"KAFKA_EVENT_TOPIC" envDefault:"custody.record-events"`

	MetricsPort int    `env:"METRICS_PORT" envDefault:"9095"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

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
