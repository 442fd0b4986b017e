// Package extension provides the Forge extension adapter for the purchase
// coordinator.
//
// It implements the forge.Extension interface to integrate the coordinator
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.iap" or "iap" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/iap"
	"github.com/xraph/iap/adapter"
	"github.com/xraph/iap/adapter/fake"
	"github.com/xraph/iap/catalog"
	"github.com/xraph/iap/entitlement"
	"github.com/xraph/iap/store"
	"github.com/xraph/iap/store/file"
	"github.com/xraph/iap/store/memory"
	mongostore "github.com/xraph/iap/store/mongo"
	pgstore "github.com/xraph/iap/store/postgres"
	redisstore "github.com/xraph/iap/store/redis"
	sqlitestore "github.com/xraph/iap/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "iap"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "In-app purchase coordination and entitlement ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the purchase coordinator as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	coordinator *iap.Coordinator
	store       store.Store
	groveDB     *grove.DB
	adapter     adapter.Adapter
	catalog     *catalog.Catalog
	coordOpts   []iap.Option
}

// New creates a new purchase Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Coordinator returns the underlying coordinator.
// This is nil until Register is called.
func (e *Extension) Coordinator() *iap.Coordinator { return e.coordinator }

// Register implements [forge.Extension]. It loads configuration, opens the
// ledger, builds the coordinator and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.build(context.Background()); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*iap.Coordinator, error) {
		return e.coordinator, nil
	}); err != nil {
		return err
	}
	return vessel.Provide(fapp.Container(), func() (*entitlement.Ledger, error) {
		return e.coordinator.Ledger(), nil
	})
}

// build wires store, catalog, ledger and adapter. The ledger reads persisted
// entitlements when opened, so the store is migrated here rather than in
// Start. On failure the store is closed and dropped.
func (e *Extension) build(ctx context.Context) (err error) {
	if e.store == nil {
		s, openErr := e.openStore()
		if openErr != nil {
			return openErr
		}
		e.store = s
	}
	defer func() {
		if err != nil {
			_ = e.store.Close() //nolint:errcheck // the build error wins
			e.store = nil
		}
	}()

	if !e.config.DisableMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return fmt.Errorf("iap: migrate store: %w", err)
		}
	}

	cat, err := e.loadCatalog()
	if err != nil {
		return err
	}

	ledger, err := entitlement.Open(ctx, e.store)
	if err != nil {
		return fmt.Errorf("iap: open ledger: %w", err)
	}

	a, err := e.resolveAdapter()
	if err != nil {
		return err
	}

	e.coordinator = iap.New(cat, ledger, a, e.buildCoordinatorOpts()...)
	return nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.coordinator == nil {
		return errors.New("iap: extension not initialized")
	}

	if !e.config.DisableAutoConnect {
		if err := e.coordinator.Initialize(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	if e.coordinator != nil {
		if err := e.coordinator.Close(ctx); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("iap: store not initialized")
	}
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if e.coordinator != nil && e.coordinator.ConnectionState() == iap.ConnectFailed {
		return iap.ErrAdapterConnectionFailed
	}
	return nil
}

// openStore builds the ledger store named by the configured driver.
func (e *Extension) openStore() (store.Store, error) {
	switch e.config.StoreDriver {
	case DriverMemory:
		return memory.New(), nil
	case DriverFile:
		if e.config.StorePath == "" {
			return nil, errors.New("iap: file store requires store_path")
		}
		return file.New(e.config.StorePath), nil
	case DriverRedis:
		if e.config.RedisURL == "" {
			return nil, errors.New("iap: redis store requires redis_url")
		}
		s, err := redisstore.Open(e.config.RedisURL, redisstore.WithPrefix(e.config.RedisPrefix))
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite, DriverPostgres, DriverMongo:
		if e.groveDB == nil {
			return nil, fmt.Errorf("iap: %s store requires WithGroveDatabase", e.config.StoreDriver)
		}
		switch e.config.StoreDriver {
		case DriverSQLite:
			return sqlitestore.New(e.groveDB), nil
		case DriverPostgres:
			return pgstore.New(e.groveDB), nil
		default:
			return mongostore.New(e.groveDB), nil
		}
	default:
		return nil, fmt.Errorf("iap: unknown store driver %q", e.config.StoreDriver)
	}
}

// loadCatalog returns the programmatic catalog or reads CatalogPath. A
// missing file yields an empty catalog; a malformed one is an error.
func (e *Extension) loadCatalog() (*catalog.Catalog, error) {
	if e.catalog != nil {
		return e.catalog, nil
	}
	if e.config.CatalogPath == "" {
		e.Logger().Warn("iap: no catalog configured, starting empty")
		return catalog.Empty(), nil
	}

	cat, err := catalog.LoadFile(e.config.CatalogPath)
	if errors.Is(err, fs.ErrNotExist) {
		e.Logger().Warn("iap: catalog file not found, starting empty",
			forge.F("path", e.config.CatalogPath),
		)
		return catalog.Empty(), nil
	}
	if err != nil {
		return nil, err
	}

	e.Logger().Debug("iap: catalog loaded",
		forge.F("path", e.config.CatalogPath),
		forge.F("products", cat.Len()),
	)
	return cat, nil
}

func (e *Extension) resolveAdapter() (adapter.Adapter, error) {
	if e.adapter != nil {
		return e.adapter, nil
	}
	if !e.config.FakeStore {
		return nil, errors.New("iap: no store backend; use WithAdapter or enable fake_store")
	}
	e.Logger().Warn("iap: using fake store backend, every purchase succeeds")
	return fake.New(fake.WithAutoResolve(adapter.StatusSucceeded, 0)), nil
}

// buildCoordinatorOpts constructs iap.Option values from the resolved config.
func (e *Extension) buildCoordinatorOpts() []iap.Option {
	opts := make([]iap.Option, 0, len(e.coordOpts)+3)

	if e.config.AttemptTimeout > 0 {
		opts = append(opts, iap.WithAttemptTimeout(e.config.AttemptTimeout))
	}
	if e.config.PluginTimeout > 0 {
		opts = append(opts, iap.WithPluginTimeout(e.config.PluginTimeout))
	}
	if e.config.DisableRestoreOnConnect {
		opts = append(opts, iap.WithRestoreOnConnect(false))
	}

	// Pass-through options last so they win.
	opts = append(opts, e.coordOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("iap: configuration is required but not found in config files; " +
				"ensure 'extensions.iap' or 'iap' key exists in your config")
		}
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("iap: configuration loaded",
		forge.F("catalog_path", e.config.CatalogPath),
		forge.F("store_driver", e.config.StoreDriver),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_auto_connect", e.config.DisableAutoConnect),
		forge.F("fake_store", e.config.FakeStore),
		forge.F("attempt_timeout", e.config.AttemptTimeout),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.iap", "iap"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("iap: loaded config from file", forge.F("key", key))
			return cfg, true
		}
		e.Logger().Warn("iap: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.StoreDriver == "" {
		if cfg.StorePath != "" {
			cfg.StoreDriver = DriverFile
		} else {
			cfg.StoreDriver = DriverMemory
		}
	}
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = defaults.RedisPrefix
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableAutoConnect {
		yamlConfig.DisableAutoConnect = true
	}
	if programmaticConfig.DisableRestoreOnConnect {
		yamlConfig.DisableRestoreOnConnect = true
	}
	if programmaticConfig.FakeStore {
		yamlConfig.FakeStore = true
	}

	if yamlConfig.CatalogPath == "" {
		yamlConfig.CatalogPath = programmaticConfig.CatalogPath
	}
	if yamlConfig.StoreDriver == "" {
		yamlConfig.StoreDriver = programmaticConfig.StoreDriver
	}
	if yamlConfig.StorePath == "" {
		yamlConfig.StorePath = programmaticConfig.StorePath
	}
	if yamlConfig.RedisURL == "" {
		yamlConfig.RedisURL = programmaticConfig.RedisURL
	}
	if yamlConfig.RedisPrefix == "" {
		yamlConfig.RedisPrefix = programmaticConfig.RedisPrefix
	}

	if yamlConfig.AttemptTimeout == 0 {
		yamlConfig.AttemptTimeout = programmaticConfig.AttemptTimeout
	}
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}

	return e.mergeWithDefaults(yamlConfig)
}
