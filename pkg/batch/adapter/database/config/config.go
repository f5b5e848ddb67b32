// Package config holds the settings of one named datasource.
package config

import "github.com/tigerroll/loancob/pkg/batch/support/util/configbinder"

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string     `yaml:"type"`             // Database type ("postgres", "mysql", "sqlite").
	Host     string     `yaml:"host"`             // Database host address.
	Port     int        `yaml:"port"`             // Database port number.
	Database string     `yaml:"database"`         // Database name, or the file path for sqlite.
	User     string     `yaml:"user"`             // Database user.
	Password string     `yaml:"password"`         // Database password.
	Schema   string     `yaml:"schema,omitempty"` // Schema (search_path) for PostgreSQL.
	Sslmode  string     `yaml:"sslmode"`          // SSL mode for the connection.
	LogLevel string     `yaml:"log_level"`        // GORM log level: silent, error, warn, info.
	Pool     PoolConfig `yaml:"pool"`             // Connection pool settings.
}

// Decode binds one raw entry of the database map.
func Decode(raw interface{}) (DatabaseConfig, error) {
	var cfg DatabaseConfig
	err := configbinder.BindProperties(raw, &cfg)
	return cfg, err
}
