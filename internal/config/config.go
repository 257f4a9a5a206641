package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	MongoDB  MongoDBConfig
	Redis    RedisConfig
	Symbol   SymbolConfig
	Monitor  MonitorConfig
	GeoIP    GeoIPConfig
	Logger   LoggerConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	AllowedOrigins []string
	RateLimit      int
	RateWindow     time.Duration
}

type StoreConfig struct {
	Driver string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN returns the lib/pq connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// URL returns the connection string in the URL form golang-migrate expects
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

type MongoDBConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
}

type SymbolConfig struct {
	InitHosts      []string
	PeerPort       int
	SocketCertPath string
	SocketKeyPath  string
}

type MonitorConfig struct {
	ConnectionTimeout time.Duration
	RestTimeout       time.Duration
	RequestChunk      int
	RequestCount      int
	HTTPSCacheTTL     time.Duration
	PeerSchedule      string
	APISchedule       string
	VotingSchedule    string
	BootstrapSchedule string
	JobTimeout        time.Duration
}

type GeoIPConfig struct {
	Enabled bool
	DBPath  string
}

type LoggerConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	// A missing .env file is fine outside local development
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvInt("SERVER_PORT", 4622),
			RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
			AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
			RateLimit:      getEnvInt("RATE_LIMIT", 120),
			RateWindow:     getEnvDuration("RATE_WINDOW", time.Minute),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", StoreMongo)),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "symbol_user"),
			Password: getEnv("DB_PASSWORD", "symbol_password"),
			DBName:   getEnv("DB_NAME", "symbol_tracker"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		MongoDB: MongoDBConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DATABASE", "symbol_tracker"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Symbol: SymbolConfig{
			InitHosts:      getEnvList("INIT_HOSTS", nil),
			PeerPort:       getEnvInt("PEER_PORT", 7900),
			SocketCertPath: getEnv("SOCKET_CERT_PATH", ""),
			SocketKeyPath:  getEnv("SOCKET_KEY_PATH", ""),
		},
		Monitor: MonitorConfig{
			ConnectionTimeout: getEnvDuration("CONNECTION_TIMEOUT", 3*time.Second),
			RestTimeout:       getEnvDuration("REST_TIMEOUT", 5*time.Second),
			RequestChunk:      getEnvInt("REQUEST_CHUNK", 10),
			RequestCount:      getEnvInt("REQUEST_COUNT", 100),
			HTTPSCacheTTL:     getEnvDuration("HTTPS_CACHE_TTL", time.Hour),
			PeerSchedule:      getEnv("PEER_SCHEDULE", "0 */5 * * * *"),
			APISchedule:       getEnv("API_SCHEDULE", "0 */7 * * * *"),
			VotingSchedule:    getEnv("VOTING_SCHEDULE", "0 13 * * * *"),
			BootstrapSchedule: getEnv("BOOTSTRAP_SCHEDULE", "0 0 */6 * * *"),
			JobTimeout:        getEnvDuration("JOB_TIMEOUT", 30*time.Minute),
		},
		GeoIP: GeoIPConfig{
			Enabled: getEnvBool("GEOIP_ENABLED", true),
			DBPath:  getEnv("GEOIP_DB_PATH", ""),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with
func (c *Config) Validate() error {
	if len(c.Symbol.InitHosts) == 0 {
		return fmt.Errorf("INIT_HOSTS must list at least one host")
	}
	if c.Monitor.RequestChunk <= 0 {
		return fmt.Errorf("REQUEST_CHUNK must be positive, got %d", c.Monitor.RequestChunk)
	}
	if c.Monitor.RequestCount <= 0 {
		return fmt.Errorf("REQUEST_COUNT must be positive, got %d", c.Monitor.RequestCount)
	}
	if c.Monitor.ConnectionTimeout <= 0 || c.Monitor.RestTimeout <= 0 {
		return fmt.Errorf("connection timeouts must be positive")
	}
	if c.Store.Driver != StoreMongo && c.Store.Driver != StorePostgres {
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if (c.Symbol.SocketCertPath == "") != (c.Symbol.SocketKeyPath == "") {
		return fmt.Errorf("SOCKET_CERT_PATH and SOCKET_KEY_PATH must be set together")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}

	var values []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
