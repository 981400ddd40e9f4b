// Package config loads the strata CLI configuration from strata.yaml and
// STRATA_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"

	"github.com/syssam/strata/dialect"
)

const maxWalkDepth = 25

// Config is the strata configuration.
type Config struct {
	// Model is the path of the metamodel file.
	Model string `mapstructure:"model" yaml:"model"`

	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Naming   NamingConfig   `mapstructure:"naming" yaml:"naming"`
	Executor ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	Signing  SigningConfig  `mapstructure:"signing" yaml:"signing"`
	DDL      DDLConfig      `mapstructure:"ddl" yaml:"ddl"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Dialect is one of postgres, mysql and sqlite.
	Dialect string `mapstructure:"dialect" yaml:"dialect"`
	// Driver is the database/sql driver name. Defaults per dialect to
	// pgx, mysql and sqlite.
	Driver   string `mapstructure:"driver" yaml:"driver"`
	URL      string `mapstructure:"url" yaml:"url"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Name     string `mapstructure:"name" yaml:"name"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// NamingConfig holds physical naming settings.
type NamingConfig struct {
	// MaxIdentifier truncates derived identifiers. Zero uses the limit of
	// the dialect.
	MaxIdentifier int `mapstructure:"max_identifier" yaml:"max_identifier"`
}

// ExecutorConfig holds query execution settings.
type ExecutorConfig struct {
	ChunkSize     int           `mapstructure:"chunk_size" yaml:"chunk_size"`
	SlowQuery     time.Duration `mapstructure:"slow_query" yaml:"slow_query"`
	CompiledCache int           `mapstructure:"compiled_cache" yaml:"compiled_cache"`
}

// SigningConfig holds signed identifier settings.
type SigningConfig struct {
	Key string        `mapstructure:"key" yaml:"key"`
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// DDLConfig holds schema migration settings.
type DDLConfig struct {
	Dir    string `mapstructure:"dir" yaml:"dir"`
	Format string `mapstructure:"format" yaml:"format"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load discovers and loads configuration with precedence
// flags > env > config file > defaults.
//
// It returns the loaded config and the path of the config file, empty if
// none was found.
func Load(explicitPath string) (*Config, string, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("STRATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := findConfigFile(explicitPath)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, path, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, path, fmt.Errorf("unmarshaling config: %w", err)
	}
	if !dialect.Valid(cfg.Database.Dialect) {
		return nil, path, fmt.Errorf("database.dialect %q is not one of postgres, mysql, sqlite", cfg.Database.Dialect)
	}
	return &cfg, path, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model", "model.yaml")

	v.SetDefault("database.dialect", dialect.Postgres)
	v.SetDefault("database.driver", "")
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "prefer")

	v.SetDefault("naming.max_identifier", 0)

	v.SetDefault("executor.chunk_size", 1000)
	v.SetDefault("executor.slow_query", 200*time.Millisecond)
	v.SetDefault("executor.compiled_cache", 512)

	v.SetDefault("signing.key", "")
	v.SetDefault("signing.ttl", 24*time.Hour)

	v.SetDefault("ddl.dir", "migrations")
	v.SetDefault("ddl.format", "atlas")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// findConfigFile returns explicitPath when given. Otherwise it walks up
// from the working directory looking for strata.yaml or strata.yml,
// stopping at a .git directory or after maxWalkDepth levels.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}
	for range maxWalkDepth {
		for _, name := range []string{"strata.yaml", "strata.yml"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil
}

// DriverName returns the database/sql driver name of the dialect.
func (c *Config) DriverName() string {
	if c.Database.Driver != "" {
		return c.Database.Driver
	}
	switch c.Database.Dialect {
	case dialect.MySQL:
		return "mysql"
	case dialect.SQLite:
		return "sqlite"
	}
	return "pgx"
}

// DSN returns the database connection string. database.url wins over
// the discrete fields.
func (c *Config) DSN() (string, error) {
	db := c.Database
	if db.URL != "" {
		return db.URL, nil
	}
	if db.Dialect == dialect.SQLite {
		if db.Name == "" {
			return "", fmt.Errorf("database.name is required for sqlite")
		}
		return "file:" + db.Name + "?_pragma=foreign_keys(1)", nil
	}
	if db.Host == "" {
		return "", fmt.Errorf("database.host is required when database.url is not set")
	}
	if db.Name == "" {
		return "", fmt.Errorf("database.name is required when database.url is not set")
	}
	if db.User == "" {
		return "", fmt.Errorf("database.user is required when database.url is not set")
	}
	if db.Dialect == dialect.MySQL {
		mc := mysql.NewConfig()
		mc.User, mc.Passwd, mc.DBName = db.User, db.Password, db.Name
		mc.Net, mc.Addr = "tcp", fmt.Sprintf("%s:%d", db.Host, port(db.Port, 3306))
		mc.ParseTime = true
		return mc.FormatDSN(), nil
	}
	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", db.Host, port(db.Port, 5432)),
		Path:   "/" + db.Name,
	}
	if db.Password != "" {
		u.User = url.UserPassword(db.User, db.Password)
	} else {
		u.User = url.User(db.User)
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func port(p, fallback int) int {
	if p == 0 {
		return fallback
	}
	return p
}

// Logger returns the slog logger configured by log.level and log.format.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
