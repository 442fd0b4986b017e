package extension

import "time"

// Store drivers selectable from configuration.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds the purchase extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.iap" or "iap" keys).
type Config struct {
	// CatalogPath is the product catalog file (.json, .yaml or .yml).
	// A missing file yields an empty catalog.
	CatalogPath string `json:"catalog_path" mapstructure:"catalog_path" yaml:"catalog_path"`

	// StoreDriver selects the ledger backend: memory, file, redis, or one
	// of sqlite/postgres/mongo together with WithGroveDatabase
	// (default: "file" when StorePath is set, otherwise "memory").
	StoreDriver string `json:"store_driver" mapstructure:"store_driver" yaml:"store_driver"`

	// StorePath is the ledger document for the file driver.
	StorePath string `json:"store_path" mapstructure:"store_path" yaml:"store_path"`

	// RedisURL is the redis:// URL for the redis driver.
	RedisURL string `json:"redis_url" mapstructure:"redis_url" yaml:"redis_url"`

	// RedisPrefix namespaces ledger keys in Redis (default: "iap:").
	RedisPrefix string `json:"redis_prefix" mapstructure:"redis_prefix" yaml:"redis_prefix"`

	// DisableMigrate prevents store migration at registration.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableAutoConnect prevents Start from calling Initialize.
	DisableAutoConnect bool `json:"disable_auto_connect" mapstructure:"disable_auto_connect" yaml:"disable_auto_connect"`

	// DisableRestoreOnConnect skips restoring confirmed transactions after
	// connecting.
	DisableRestoreOnConnect bool `json:"disable_restore_on_connect" mapstructure:"disable_restore_on_connect" yaml:"disable_restore_on_connect"`

	// FakeStore uses the in-process fake backend, resolving every purchase
	// successfully, when no adapter was provided. Development only.
	FakeStore bool `json:"fake_store" mapstructure:"fake_store" yaml:"fake_store"`

	// AttemptTimeout fails purchases not resolved in time (default: 0,
	// wait indefinitely).
	AttemptTimeout time.Duration `json:"attempt_timeout" mapstructure:"attempt_timeout" yaml:"attempt_timeout"`

	// PluginTimeout bounds each plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RedisPrefix:   "iap:",
		PluginTimeout: 5 * time.Second,
	}
}
