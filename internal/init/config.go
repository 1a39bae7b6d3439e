package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// App mode & server
	Mode        string
	ServerAddr  string
	TLSCertFile string
	TLSKeyFile  string
	CORSOrigins []string
	LogLevel    string

	// Auth
	JWTSecret  string
	JWTTTL     time.Duration
	JWTIssuer  string
	BcryptCost int

	// Result limits
	FeedLimit int
	ListLimit int

	// Database
	DBDriver string
	DBDSN    string

	// Kafka
	KafkaBroker  string
	KafkaTopic   string
	KafkaGroupID string
	KafkaReadTO  time.Duration
	KafkaWriteTO time.Duration

	// Worker
	WorkerCount     int
	WorkerQueueSize int
}

var cfg *Config

// Init loads the config using Viper and returns it
func Init() *Config {
	viper.SetDefault("MODE", "server")
	viper.SetDefault("SERVER_ADDR", ":8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("CORS_ORIGINS", "")

	// JWT_SECRET has no default: a server without one refuses to start.
	viper.SetDefault("JWT_TTL", "0s")
	viper.SetDefault("JWT_ISSUER", "tweetfeed")
	viper.SetDefault("BCRYPT_COST", 10)

	viper.SetDefault("FEED_LIMIT", 4)
	viper.SetDefault("LIST_LIMIT", 100)

	viper.SetDefault("DB_DRIVER", "sqlite")
	viper.SetDefault("DB_DSN", "file:tweetfeed.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")

	// Empty broker disables event publishing.
	viper.SetDefault("KAFKA_BROKER", "")
	viper.SetDefault("KAFKA_TOPIC", "tweet-events")
	viper.SetDefault("KAFKA_GROUP_ID", "notification-worker")
	viper.SetDefault("KAFKA_READ_TIMEOUT", "10s")
	viper.SetDefault("KAFKA_WRITE_TIMEOUT", "10s")

	viper.SetDefault("WORKER_COUNT", 0)
	viper.SetDefault("WORKER_QUEUE_SIZE", 0)

	// Load env variables
	viper.AutomaticEnv()

	// Optional config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	_ = viper.ReadInConfig() // ignore error if no file

	cfg = &Config{
		Mode:            viper.GetString("MODE"),
		ServerAddr:      viper.GetString("SERVER_ADDR"),
		TLSCertFile:     viper.GetString("TLS_CERT_FILE"),
		TLSKeyFile:      viper.GetString("TLS_KEY_FILE"),
		CORSOrigins:     splitList(viper.GetString("CORS_ORIGINS")),
		LogLevel:        viper.GetString("LOG_LEVEL"),
		JWTSecret:       viper.GetString("JWT_SECRET"),
		JWTTTL:          parseDuration(viper.GetString("JWT_TTL"), 0),
		JWTIssuer:       viper.GetString("JWT_ISSUER"),
		BcryptCost:      viper.GetInt("BCRYPT_COST"),
		FeedLimit:       positiveOr(viper.GetInt("FEED_LIMIT"), 4),
		ListLimit:       positiveOr(viper.GetInt("LIST_LIMIT"), 100),
		DBDriver:        viper.GetString("DB_DRIVER"),
		DBDSN:           viper.GetString("DB_DSN"),
		KafkaBroker:     viper.GetString("KAFKA_BROKER"),
		KafkaTopic:      viper.GetString("KAFKA_TOPIC"),
		KafkaGroupID:    viper.GetString("KAFKA_GROUP_ID"),
		KafkaReadTO:     parseDuration(viper.GetString("KAFKA_READ_TIMEOUT"), 10*time.Second),
		KafkaWriteTO:    parseDuration(viper.GetString("KAFKA_WRITE_TIMEOUT"), 10*time.Second),
		WorkerCount:     viper.GetInt("WORKER_COUNT"),
		WorkerQueueSize: viper.GetInt("WORKER_QUEUE_SIZE"),
	}

	return cfg
}

func parseDuration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// splitList turns "a, b,,c" into [a b c].
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Get returns the loaded config instance
func Get() *Config {
	return cfg
}
