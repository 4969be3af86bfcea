package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	// UseMemoryStore keeps notifications in process; the directory still needs Postgres
	UseMemoryStore bool

	// Redis config
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Push transport
	PushProvider            string // fcm, sns or mock
	FirebaseCredentialsFile string
	FirebaseCredentialsJSON string
	FirebaseProjectID       string
	AWSRegion               string
	SNSRegion               string
	SNSTopicARNPrefix       string // topic names are appended to this

	// Circuit breaker around the push transport
	BreakerMaxFailures     int
	BreakerRecoveryTimeout time.Duration

	// Alert pipeline
	DispatchConcurrency int
	AlertCooldown       time.Duration // opt-in, 0 disables suppression

	RateLimitPerMinute int
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "aquamon",
		DBPassword: "",
		DBName:     "aquamon",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost: "localhost",
		RedisPort: 6379,

		PushProvider: "fcm",
		AWSRegion:    "us-east-1",

		BreakerMaxFailures:     5,
		BreakerRecoveryTimeout: 30 * time.Second,

		DispatchConcurrency: 8,
		AlertCooldown:       0,
		RateLimitPerMinute:  120,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	if v := os.Getenv("NOTIFICATION_STORE"); v != "" {
		switch v {
		case "memory":
			cfg.UseMemoryStore = true
		case "postgres":
			cfg.UseMemoryStore = false
		default:
			return nil, fmt.Errorf("invalid NOTIFICATION_STORE: %q", v)
		}
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	// Push transport
	if provider := os.Getenv("PUSH_PROVIDER"); provider != "" {
		cfg.PushProvider = provider
	}

	if path := os.Getenv("FIREBASE_CREDENTIALS_FILE"); path != "" {
		cfg.FirebaseCredentialsFile = path
	}

	if creds := os.Getenv("FIREBASE_CREDENTIALS_JSON"); creds != "" {
		cfg.FirebaseCredentialsJSON = creds
	}

	if project := os.Getenv("FIREBASE_PROJECT_ID"); project != "" {
		cfg.FirebaseProjectID = project
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if region := os.Getenv("SNS_REGION"); region != "" {
		cfg.SNSRegion = region
	} else {
		cfg.SNSRegion = cfg.AWSRegion
	}

	if prefix := os.Getenv("SNS_TOPIC_ARN_PREFIX"); prefix != "" {
		cfg.SNSTopicARNPrefix = prefix
	}

	// Circuit breaker
	if v := os.Getenv("PUSH_BREAKER_MAX_FAILURES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid PUSH_BREAKER_MAX_FAILURES: %q", v)
		}
		cfg.BreakerMaxFailures = n
	}

	if v := os.Getenv("PUSH_BREAKER_RECOVERY_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid PUSH_BREAKER_RECOVERY_SECONDS: %q", v)
		}
		cfg.BreakerRecoveryTimeout = time.Duration(n) * time.Second
	}

	// Alert pipeline
	if v := os.Getenv("DISPATCH_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid DISPATCH_CONCURRENCY: %q", v)
		}
		cfg.DispatchConcurrency = n
	}

	if v := os.Getenv("ALERT_COOLDOWN_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid ALERT_COOLDOWN_SECONDS: %q", v)
		}
		cfg.AlertCooldown = time.Duration(n) * time.Second
	}

	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %q", v)
		}
		cfg.RateLimitPerMinute = n
	}

	return cfg, nil
}

// DatabaseURL builds the pgx connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}
