package config

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	Port       string `mapstructure:"PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBName     string `mapstructure:"DB_NAME"`
	DBMaxConns int    `mapstructure:"DB_MAX_CONNS"`
	Timezone   string `mapstructure:"APP_TIMEZONE"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`

	// memory | mysql
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	// permissive | strict
	AppointmentTransitions string `mapstructure:"APPOINTMENT_TRANSITIONS"`

	EventSinks   []string `mapstructure:"EVENT_SINKS"`
	EventBuffer  int      `mapstructure:"EVENT_BUFFER"`
	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string   `mapstructure:"KAFKA_TOPIC"`
	SQSQueueURL  string   `mapstructure:"SQS_QUEUE_URL"`

	DevAdminPassword string `mapstructure:"DEV_ADMIN_PASSWORD"`
}

var keys = []string{
	"APP_ENV", "PORT", "DB_USER", "DB_PASSWORD", "DB_HOST", "DB_PORT", "DB_NAME", "DB_MAX_CONNS",
	"APP_TIMEZONE", "JWT_SECRET", "JWT_TTL", "REQUEST_TIMEOUT", "CORS_ORIGINS", "STORE_DRIVER",
	"APPOINTMENT_TRANSITIONS", "EVENT_SINKS", "EVENT_BUFFER", "KAFKA_BROKERS", "KAFKA_TOPIC",
	"SQS_QUEUE_URL", "DEV_ADMIN_PASSWORD",
}

var (
	cfg    *Config
	cfgErr error
	once   sync.Once
)

// LoadConfig reads .env (when present) and the environment once per process.
func LoadConfig() (*Config, error) {
	once.Do(func() {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: .env file not found. Relying on environment variables.")
		}
		cfg, cfgErr = Load()
	})
	return cfg, cfgErr
}

// Load builds a Config from the current environment without caching.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_HOST", "127.0.0.1")
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("APP_TIMEZONE", "Asia/Ho_Chi_Minh")
	v.SetDefault("JWT_TTL", "12h")
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("STORE_DRIVER", "mysql")
	v.SetDefault("APPOINTMENT_TRANSITIONS", "permissive")
	v.SetDefault("EVENT_SINKS", "ws")
	v.SetDefault("EVENT_BUFFER", 256)
	v.SetDefault("KAFKA_TOPIC", "clinic.events")
	v.SetDefault("DEV_ADMIN_PASSWORD", "admin")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.CORSOrigins = splitList(c.CORSOrigins)
	c.EventSinks = splitList(c.EventSinks)
	c.KafkaBrokers = splitList(c.KafkaBrokers)
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.AppointmentTransitions = strings.ToLower(strings.TrimSpace(c.AppointmentTransitions))

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// splitList normalises list values that may arrive as a single comma separated string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) IsDev() bool {
	return c.AppEnv == "development"
}

// Location returns the clinic's time zone, falling back to local time.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Validate checks combinations that cannot work at runtime.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "mysql":
		if c.DBUser == "" || c.DBName == "" {
			return fmt.Errorf("DB_USER and DB_NAME are required when STORE_DRIVER is mysql")
		}
	case "memory":
		if c.IsProduction() {
			return fmt.Errorf("STORE_DRIVER=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be \"mysql\" or \"memory\", got %q", c.StoreDriver)
	}

	if c.AppointmentTransitions != "permissive" && c.AppointmentTransitions != "strict" {
		return fmt.Errorf("APPOINTMENT_TRANSITIONS must be \"permissive\" or \"strict\", got %q", c.AppointmentTransitions)
	}

	if c.JWTSecret == "" {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		c.JWTSecret = "dev-secret-change-me"
	}

	for _, sink := range c.EventSinks {
		switch sink {
		case "ws":
		case "kafka":
			if len(c.KafkaBrokers) == 0 {
				return fmt.Errorf("KAFKA_BROKERS is required when EVENT_SINKS contains kafka")
			}
		case "sqs":
			if c.SQSQueueURL == "" {
				return fmt.Errorf("SQS_QUEUE_URL is required when EVENT_SINKS contains sqs")
			}
		default:
			return fmt.Errorf("unknown event sink %q", sink)
		}
	}
	return nil
}

func (c *Config) HasSink(name string) bool {
	for _, s := range c.EventSinks {
		if s == name {
			return true
		}
	}
	return false
}

// MySQLDSN builds the go-sql-driver DSN.
func (c *Config) MySQLDSN(multiStatements bool) string {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
	if multiStatements {
		dsn += "&multiStatements=true"
	}
	return dsn
}
