package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the API process.
// Values are loaded from environment variables with defaults so the binary
// runs locally against in-memory stores and a logging dispatcher.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr      string
	RedisPassword  string
	RedisJobPrefix string
	JobTTL         time.Duration

	PGDSN string

	DispatchTransport       string
	KafkaBrokers            []string
	AMQPURL                 string
	AMQPExchange            string
	DispatchConnectAttempts int
	DispatchConnectBackoff  time.Duration

	Channels Channels

	MaxRange         int
	SearchKeyPrefix  string
	SearchPendingTTL time.Duration
	SearchResultTTL  time.Duration

	TimeToRate        time.Duration
	TestUserID        string
	TestVehicleQRCode string
	WatchInterval     time.Duration

	JWTSecret    string
	StripeAPIKey string

	LogLevel      string
	RunMigrations bool
}

// Channels names the downstream topics the fleet actuator listens on.
type Channels struct {
	UnlockVehicle    string
	EndRide          string
	UpdateDavBalance string
	RayvenFeedback   string
	SearchVehicles   string
}

// DefaultJWTSecret matches the development tokens; serve warns when it is
// still in use.
const DefaultJWTSecret = "secret"

func DefaultChannels() Channels {
	return Channels{
		UnlockVehicle:    "unlock-vehicle",
		EndRide:          "end-ride",
		UpdateDavBalance: "update-dav-balance",
		RayvenFeedback:   "rayven-feedback",
		SearchVehicles:   "search-vehicles",
	}
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:                ":8080",
		ReadTimeout:             5 * time.Second,
		WriteTimeout:            10 * time.Second,
		IdleTimeout:             120 * time.Second,
		ShutdownTimeout:         15 * time.Second,
		RedisJobPrefix:          "user_jobs:",
		JobTTL:                  5 * time.Minute,
		DispatchTransport:       "log",
		AMQPExchange:            "fleet",
		DispatchConnectAttempts: 5,
		DispatchConnectBackoff:  500 * time.Millisecond,
		Channels:                DefaultChannels(),
		MaxRange:                4,
		SearchKeyPrefix:         "vehicle_search:",
		SearchPendingTTL:        15 * time.Second,
		SearchResultTTL:         time.Minute,
		TimeToRate:              600 * time.Second,
		TestUserID:              "ffffffff-ffff-ffff-ffff-ffffffffffff",
		TestVehicleQRCode:       "000000",
		WatchInterval:           time.Second,
		JWTSecret:               DefaultJWTSecret,
		LogLevel:                "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisJobPrefix, "REDIS_JOB_PREFIX")
	setDurationFromEnv(&cfg.JobTTL, "JOB_TTL", &errs)

	cfg.PGDSN = os.Getenv("PG_DSN")

	if v := os.Getenv("DISPATCH_TRANSPORT"); v != "" {
		cfg.DispatchTransport = strings.ToLower(strings.TrimSpace(v))
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	cfg.AMQPURL = os.Getenv("AMQP_URL")
	setStringFromEnv(&cfg.AMQPExchange, "AMQP_EXCHANGE")
	setIntFromEnv(&cfg.DispatchConnectAttempts, "DISPATCH_CONNECT_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.DispatchConnectBackoff, "DISPATCH_CONNECT_BACKOFF", &errs)

	setStringFromEnv(&cfg.Channels.UnlockVehicle, "UNLOCK_VEHICLE_TOPIC")
	setStringFromEnv(&cfg.Channels.EndRide, "END_RIDE_TOPIC")
	setStringFromEnv(&cfg.Channels.UpdateDavBalance, "UPDATE_DAV_BALANCE_TOPIC")
	setStringFromEnv(&cfg.Channels.RayvenFeedback, "RAYVEN_FEEDBACK_TOPIC")
	setStringFromEnv(&cfg.Channels.SearchVehicles, "SEARCH_VEHICLES_TOPIC")

	setIntFromEnv(&cfg.MaxRange, "MAX_RANGE", &errs)
	setStringFromEnv(&cfg.SearchKeyPrefix, "REDIS_SEARCH_PREFIX")
	setDurationFromEnv(&cfg.SearchPendingTTL, "SEARCH_PENDING_TTL", &errs)
	setDurationFromEnv(&cfg.SearchResultTTL, "SEARCH_RESULT_TTL", &errs)

	setSecondsFromEnv(&cfg.TimeToRate, "TIME_TO_RATE", &errs)
	setStringFromEnv(&cfg.TestUserID, "TEST_USER_ID")
	setStringFromEnv(&cfg.TestVehicleQRCode, "TEST_VEHICLE_QR_CODE")
	setDurationFromEnv(&cfg.WatchInterval, "WATCH_INTERVAL", &errs)

	setStringFromEnv(&cfg.JWTSecret, "JWT_SECRET")
	cfg.StripeAPIKey = os.Getenv("STRIPE_API_KEY")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	switch cfg.DispatchTransport {
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			errs = append(errs, fmt.Errorf("KAFKA_BROKERS is required for kafka transport"))
		}
	case "amqp":
		if cfg.AMQPURL == "" {
			errs = append(errs, fmt.Errorf("AMQP_URL is required for amqp transport"))
		}
	case "log":
	default:
		errs = append(errs, fmt.Errorf("unknown DISPATCH_TRANSPORT %q", cfg.DispatchTransport))
	}
	if cfg.JobTTL <= 0 {
		errs = append(errs, fmt.Errorf("JOB_TTL must be > 0"))
	}
	if cfg.TimeToRate <= 0 {
		errs = append(errs, fmt.Errorf("TIME_TO_RATE must be > 0"))
	}
	if cfg.MaxRange <= 0 {
		errs = append(errs, fmt.Errorf("MAX_RANGE must be > 0"))
	}
	if cfg.DispatchConnectAttempts <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_CONNECT_ATTEMPTS must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

// UsesDefaultJWTSecret reports whether tokens are verified with the
// development secret.
func (c ServerConfig) UsesDefaultJWTSecret() bool { return c.JWTSecret == DefaultJWTSecret }

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

// setSecondsFromEnv reads a plain integer number of seconds.
func setSecondsFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = time.Duration(n) * time.Second
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
