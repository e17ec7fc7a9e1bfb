// Package config loads epv's runtime configuration from the environment
// (and an optional .env file) via viper, with typed defaults for every
// section.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const Version = "1.0"

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Storage     StorageConfig
	IMAP        IMAPConfig
	Ratelimit   RatelimitConfig
	Users       []User
	Security    SecurityConfig
	Tracing     TracingConfig
	LogLevel    string
	Environment string
}

type ServerConfig struct {
	Port int
	Host string
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MaxConnections int
}

// StorageConfig locates the directories the content store and the static
// file server read and write under.
type StorageConfig struct {
	FileRoot    string // {file_root}/{user}/{id}.html lives here
	FrontendDir string // static assets served at "/"
}

type IMAPConfig struct {
	Host         string
	Port         int
	UseTLS       bool
	Username     string
	Password     string
	Mailbox      string
	ReadMailbox  string
	PollInterval time.Duration
}

// User is both an HTTP Basic-auth principal and, when AddressPostfix is
// set, a mailbox owner matched against the IMAP message's To address
// (the "user+postfix@domain" convention).
type User struct {
	Username       string
	PasswordHash   string // bcrypt
	AddressPostfix string
}

type RatelimitConfig struct {
	Num    int
	Window time.Duration
}

// TracingConfig gates the OpenCensus SQL driver wrapper initDB installs.
type TracingConfig struct {
	Enabled bool
}

// SecurityConfig holds the key used to sign session tokens issued by
// /api/auth/verify.
type SecurityConfig struct {
	JWTSecret []byte
}

// LoadOptions controls which env file, if any, Load reads before
// falling back to process environment variables.
type LoadOptions struct {
	EnvFile string
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{EnvFile: ".env"})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_HOST", "0.0.0.0")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "epv")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONNECTIONS", 20)

	v.SetDefault("STORAGE_FILE_ROOT", "./data/emails")
	v.SetDefault("STORAGE_FRONTEND_DIR", "./web/dist")

	v.SetDefault("IMAP_PORT", 993)
	v.SetDefault("IMAP_USE_TLS", true)
	v.SetDefault("IMAP_MAILBOX", "INBOX")
	v.SetDefault("IMAP_READ_MAILBOX", "EPV-READ")
	v.SetDefault("IMAP_POLL_INTERVAL", "5s")

	v.SetDefault("RATELIMIT_NUM", 60)
	v.SetDefault("RATELIMIT_WINDOW", "1m")

	v.SetDefault("ENVIRONMENT", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("TRACING_ENABLED", false)

	if opts.EnvFile != "" {
		v.SetConfigName(opts.EnvFile)
		v.SetConfigType("env")

		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get current directory: %w", err)
		}
		v.AddConfigPath(cwd)

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	dbCfg := DatabaseConfig{
		Host:           v.GetString("DB_HOST"),
		Port:           v.GetInt("DB_PORT"),
		User:           v.GetString("DB_USER"),
		Password:       v.GetString("DB_PASSWORD"),
		DBName:         v.GetString("DB_NAME"),
		SSLMode:        v.GetString("DB_SSLMODE"),
		MaxConnections: v.GetInt("DB_MAX_CONNECTIONS"),
	}
	if dbCfg.MaxConnections < 1 {
		return nil, fmt.Errorf("DB_MAX_CONNECTIONS must be at least 1 (got %d)", dbCfg.MaxConnections)
	}

	secretKey := v.GetString("SECRET_KEY")
	if secretKey == "" {
		return nil, fmt.Errorf("SECRET_KEY must be set")
	}
	jwtSecret, err := decodeSecretKey(secretKey)
	if err != nil {
		return nil, err
	}
	if len(jwtSecret) < 32 {
		fmt.Fprintf(os.Stderr, "WARNING: SECRET_KEY is only %d bytes; use at least 32 for production.\n", len(jwtSecret))
	}

	users, err := loadUsers(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetInt("SERVER_PORT"),
			Host: v.GetString("SERVER_HOST"),
		},
		Database: dbCfg,
		Storage: StorageConfig{
			FileRoot:    v.GetString("STORAGE_FILE_ROOT"),
			FrontendDir: v.GetString("STORAGE_FRONTEND_DIR"),
		},
		IMAP: IMAPConfig{
			Host:         v.GetString("IMAP_HOST"),
			Port:         v.GetInt("IMAP_PORT"),
			UseTLS:       v.GetBool("IMAP_USE_TLS"),
			Username:     v.GetString("IMAP_USERNAME"),
			Password:     v.GetString("IMAP_PASSWORD"),
			Mailbox:      v.GetString("IMAP_MAILBOX"),
			ReadMailbox:  v.GetString("IMAP_READ_MAILBOX"),
			PollInterval: v.GetDuration("IMAP_POLL_INTERVAL"),
		},
		Ratelimit: RatelimitConfig{
			Num:    v.GetInt("RATELIMIT_NUM"),
			Window: v.GetDuration("RATELIMIT_WINDOW"),
		},
		Users:       users,
		Security:    SecurityConfig{JWTSecret: jwtSecret},
		Tracing:     TracingConfig{Enabled: v.GetBool("TRACING_ENABLED")},
		LogLevel:    v.GetString("LOG_LEVEL"),
		Environment: v.GetString("ENVIRONMENT"),
	}

	return cfg, nil
}

// decodeSecretKey accepts SECRET_KEY as base64 (preferred) or, failing
// that, as raw bytes.
func decodeSecretKey(secretKey string) ([]byte, error) {
	if decoded, err := base64.StdEncoding.DecodeString(secretKey); err == nil {
		return decoded, nil
	}
	return []byte(secretKey), nil
}

// loadUsers reads EPV_USER_1_NAME/EPV_USER_1_PASSWORD_HASH/
// EPV_USER_1_ADDRESS_POSTFIX (and _2_, _3_, ...) until a name is unset.
// A single user needs no AddressPostfix: they own every ingested message.
func loadUsers(v *viper.Viper) ([]User, error) {
	var users []User
	for i := 1; ; i++ {
		prefix := "EPV_USER_" + strconv.Itoa(i) + "_"
		name := v.GetString(prefix + "NAME")
		if name == "" {
			break
		}
		hash := v.GetString(prefix + "PASSWORD_HASH")
		if hash == "" {
			return nil, fmt.Errorf("%sPASSWORD_HASH must be set for user %q", prefix, name)
		}
		users = append(users, User{
			Username:       name,
			PasswordHash:   hash,
			AddressPostfix: v.GetString(prefix + "ADDRESS_POSTFIX"),
		})
	}
	return users, nil
}
