package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Mongo         MongoConfig         `mapstructure:"mongo"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Security      SecurityConfig      `mapstructure:"security"`
	Appointments  AppointmentsConfig  `mapstructure:"appointments"`
}

type ServerConfig struct {
	Host    string        `mapstructure:"host"`
	Port    int           `mapstructure:"port"`
	Mode    string        `mapstructure:"mode"`
	Timeout time.Duration `mapstructure:"timeout"`
	TLS     TLSConfig     `mapstructure:"tls"`
	// CORSOrigins lists the browser origins allowed to call the API. Empty
	// allows any origin.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

type DatabaseConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Name        string        `mapstructure:"name"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	SSLMode     string        `mapstructure:"sslmode"`
	MaxConns    int32         `mapstructure:"max_conns"`
	ConnTimeout time.Duration `mapstructure:"conn_timeout"`
}

// DSN renders the libpq key/value connection string understood by both pgx
// and lib/pq.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type MongoConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	MaxPoolSize    uint64        `mapstructure:"max_pool_size"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	TLSEnabled     bool          `mapstructure:"tls_enabled"`
	TLSCAFile      string        `mapstructure:"tls_ca_file"`
}

type ElasticsearchConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Addresses   []string `mapstructure:"addresses"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	IndexPrefix string   `mapstructure:"index_prefix"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
}

type SecurityConfig struct {
	EncryptionKey  string  `mapstructure:"encryption_key"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

type AppointmentsConfig struct {
	SlotMinutes          int  `mapstructure:"slot_minutes"`
	StrictTransitions    bool `mapstructure:"strict_transitions"`
	PreventDoubleBooking bool `mapstructure:"prevent_double_booking"`
	StrictOwnership      bool `mapstructure:"strict_ownership"`
}

func (a AppointmentsConfig) SlotLength() time.Duration {
	return time.Duration(a.SlotMinutes) * time.Minute
}

var searchPaths = []string{
	"./configs",
	"../configs",
	"/etc/clinic-records",
}

// legacyEnv lists the unprefixed variable names deployments already use.
var legacyEnv = map[string]string{
	"database.host":           "POSTGRES_HOST",
	"database.port":           "POSTGRES_PORT",
	"database.name":           "POSTGRES_DB",
	"database.user":           "POSTGRES_USER",
	"database.password":       "POSTGRES_PASSWORD",
	"database.sslmode":        "POSTGRES_SSLMODE",
	"auth.jwt_secret":         "JWT_SECRET",
	"security.encryption_key": "ENCRYPTION_KEY",
	"elasticsearch.addresses": "ELASTICSEARCH_URL",
	"elasticsearch.username":  "ELASTICSEARCH_USERNAME",
	"elasticsearch.password":  "ELASTICSEARCH_PASSWORD",
	"kafka.brokers":           "KAFKA_BROKERS",
	"mongo.uri":               "MONGO_URI",
}

// Load reads config.yaml from the usual locations, if present, and applies
// CLINIC_* environment overrides on top.
func Load() (*Config, error) {
	return load("")
}

// LoadFile is Load with an explicit config file that must exist.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CLINIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envName := "CLINIC_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envName, legacy); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range searchPaths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "clinic")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.conn_timeout", 5*time.Second)

	v.SetDefault("mongo.enabled", false)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "clinic")
	v.SetDefault("mongo.max_pool_size", 20)
	v.SetDefault("mongo.connect_timeout", 10*time.Second)
	v.SetDefault("mongo.tls_enabled", false)
	v.SetDefault("mongo.tls_ca_file", "")

	v.SetDefault("elasticsearch.enabled", false)
	v.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.index_prefix", "clinic_audit_")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "appointments")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_expiry", 24*time.Hour)

	v.SetDefault("security.encryption_key", "")
	v.SetDefault("security.rate_limit_rps", 30)
	v.SetDefault("security.rate_limit_burst", 60)

	v.SetDefault("appointments.slot_minutes", 30)
	v.SetDefault("appointments.strict_transitions", false)
	v.SetDefault("appointments.prevent_double_booking", false)
	v.SetDefault("appointments.strict_ownership", false)
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Database.Port <= 0 {
		return fmt.Errorf("invalid database.port %d", c.Database.Port)
	}
	if c.Appointments.SlotMinutes <= 0 {
		return fmt.Errorf("appointments.slot_minutes must be positive, got %d", c.Appointments.SlotMinutes)
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return errors.New("server.tls requires cert_file and key_file")
	}
	return nil
}
