package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DB       *DBconfig
	RabbitMq *RabbitMqconfig
	Redis    *Redisconfig
	Srv      *Serviceconfig
	Log      *Loggerconfig
	Fare     *Fareconfig
	Crypto   *Cryptoconfig
	Maps     *Mapsconfig
}

type DBconfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

type RabbitMqconfig struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
}

type Redisconfig struct {
	Addr       string
	Password   string
	DB         int
	SessionTTL int // minutes
}

type Serviceconfig struct {
	OrderServicePort string
	AccessSecret     string
	DispatchChannel  string
}

type Loggerconfig struct {
	Level string
}

// Fareconfig carries the pricing knobs the order core needs:
// commission and bonus write-off percentages, the hourly drive-around
// rate and the paid-waiting parameters.
type Fareconfig struct {
	CommissionPercent int
	WriteOffPercent   int
	HourlyRate        int
	WaitFreeSeconds   int
	WaitWindowSeconds int
	WaitIncrement     int
	DispatchTimeout   int // minutes until an unanswered order is auto-cancelled
}

type Cryptoconfig struct {
	DataKey string // base64 encoded 32-byte key for PII encryption at rest
}

type Mapsconfig struct {
	APIKey string
}

func New() (*Config, error) {
	// .env is optional, env vars win either way
	_ = godotenv.Load()

	getEnv := func(key, def string) string {
		val := os.Getenv(key)
		if val == "" {
			fmt.Printf("using default key %v\n", def)
			return def
		}
		return val
	}

	getEnvInt := func(key string, def int) int {
		valStr := os.Getenv(key)
		if valStr == "" {
			fmt.Printf("using default key %v\n", def)
			return def
		}
		val, err := strconv.Atoi(valStr)
		if err != nil {
			fmt.Printf("using default key %v\n", def)
			return def
		}
		return val
	}

	cnf := &Config{
		DB: &DBconfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "aggregator_user"),
			Password: getEnv("DB_PASSWORD", "aggregator_pass"),
			Database: getEnv("DB_NAME", "aggregator_db"),
		},
		RabbitMq: &RabbitMqconfig{
			Host:     getEnv("RABBITMQ_HOST", "localhost"),
			Port:     getEnvInt("RABBITMQ_PORT", 5672),
			User:     getEnv("RABBITMQ_USER", "guest"),
			Password: getEnv("RABBITMQ_PASSWORD", "guest"),
			VHost:    getEnv("RABBITMQ_VHOST", ""),
		},
		Redis: &Redisconfig{
			Addr:       getEnv("REDIS_ADDR", "localhost:6379"),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvInt("REDIS_DB", 0),
			SessionTTL: getEnvInt("SESSION_TTL_MINUTES", 30),
		},
		Srv: &Serviceconfig{
			OrderServicePort: getEnv("ORDER_SERVICE_PORT", "3000"),
			AccessSecret:     getEnv("ACCESS_SECRET", "secret"),
			DispatchChannel:  getEnv("DISPATCH_CHANNEL", "dispatch"),
		},
		Log: &Loggerconfig{
			Level: getEnv("LOG_LEVEL", "INFO"),
		},
		Fare: &Fareconfig{
			CommissionPercent: getEnvInt("PERC_OF_COMMISSION", 10),
			WriteOffPercent:   getEnvInt("PERC_OF_WRITE_OFF", 30),
			HourlyRate:        getEnvInt("HOURLY_RATE", 2500),
			WaitFreeSeconds:   getEnvInt("WAIT_FREE_SECONDS", 297),
			WaitWindowSeconds: getEnvInt("WAIT_WINDOW_SECONDS", 60),
			WaitIncrement:     getEnvInt("WAIT_INCREMENT", 20),
			DispatchTimeout:   getEnvInt("DISPATCH_TIMEOUT_MINUTES", 30),
		},
		Crypto: &Cryptoconfig{
			DataKey: getEnv("DATA_ENCRYPTION_KEY", ""),
		},
		Maps: &Mapsconfig{
			APIKey: getEnv("MAPS_API_KEY", ""),
		},
	}

	return cnf, nil
}
