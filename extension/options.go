package extension

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/iap"
	"github.com/xraph/iap/adapter"
	"github.com/xraph/iap/catalog"
	"github.com/xraph/iap/plugin"
	"github.com/xraph/iap/store"
)

// Option configures the purchase Forge extension.
type Option func(*Extension)

// WithStore sets the ledger store, overriding StoreDriver.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDatabase supplies the grove database used by the sqlite,
// postgres and mongo drivers.
func WithGroveDatabase(db *grove.DB) Option {
	return func(e *Extension) {
		e.groveDB = db
	}
}

// WithAdapter sets the store backend.
func WithAdapter(a adapter.Adapter) Option {
	return func(e *Extension) {
		e.adapter = a
	}
}

// WithCatalog sets the catalog, overriding CatalogPath.
func WithCatalog(c *catalog.Catalog) Option {
	return func(e *Extension) {
		e.catalog = c
	}
}

// WithCoordinatorOption passes an iap.Option through to the coordinator.
func WithCoordinatorOption(opt iap.Option) Option {
	return func(e *Extension) {
		e.coordOpts = append(e.coordOpts, opt)
	}
}

// WithPlugin registers a coordinator plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.coordOpts = append(e.coordOpts, iap.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithCatalogPath sets the catalog file.
func WithCatalogPath(path string) Option {
	return func(e *Extension) { e.config.CatalogPath = path }
}

// WithStoreDriver selects the ledger backend by name.
func WithStoreDriver(driver string) Option {
	return func(e *Extension) { e.config.StoreDriver = driver }
}

// WithStorePath sets the ledger document for the file driver.
func WithStorePath(path string) Option {
	return func(e *Extension) { e.config.StorePath = path }
}

// WithRedisURL sets the Redis URL for the redis driver.
func WithRedisURL(url string) Option {
	return func(e *Extension) { e.config.RedisURL = url }
}

// WithDisableMigrate prevents store migration at registration.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableAutoConnect prevents Start from connecting to the backend.
func WithDisableAutoConnect() Option {
	return func(e *Extension) { e.config.DisableAutoConnect = true }
}

// WithFakeStore uses the auto-resolving fake backend.
func WithFakeStore() Option {
	return func(e *Extension) { e.config.FakeStore = true }
}

// WithAttemptTimeout fails purchases that are not resolved within d.
func WithAttemptTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.AttemptTimeout = d }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
