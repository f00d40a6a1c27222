// Package engine wires the registry, resolver, mapping store and impact
// index into one explicitly constructed value. Nothing here is global: two
// engines over two repos never share state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"crossbridge/internal/config"
	cberrors "crossbridge/internal/errors"
	"crossbridge/internal/impact"
	"crossbridge/internal/mapping"
	"crossbridge/internal/mappingstore"
	"crossbridge/internal/paths"
	"crossbridge/internal/signals"
	"crossbridge/internal/slogutil"
	"crossbridge/internal/storage"
	badgerstore "crossbridge/internal/storage/badger"
)

// Engine is the facade the CLI and embedding hosts talk to.
// It is not safe for concurrent use.
type Engine struct {
	repoRoot string
	cfg      *config.Config
	logger   *slog.Logger

	registry *signals.Registry
	resolver *mapping.Resolver
	store    *mappingstore.Store
	index    *impact.Index
	facts    impact.FactStore // nil for the memory fact store

	dbs    map[storage.Driver]*storage.DB
	badger *badgerstore.FactStore
	now    func() time.Time
}

// Open builds an engine for repoRoot. The registry is seeded from the
// configured manifests and the index is rebuilt from the fact store.
func Open(ctx context.Context, cfg *config.Config, repoRoot string, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, cberrors.NewBridgeError(cberrors.ConfigInvalid, "invalid configuration", err)
	}
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}

	e := &Engine{
		repoRoot: repoRoot,
		cfg:      cfg,
		logger:   logger,
		dbs:      make(map[storage.Driver]*storage.DB),
		now:      time.Now,
	}

	if err := e.openRegistry(); err != nil {
		return nil, err
	}
	e.resolver = mapping.NewResolver(e.registry)

	if err := e.openStore(ctx); err != nil {
		e.Close()
		return nil, err
	}
	if err := e.openFacts(ctx); err != nil {
		e.Close()
		return nil, err
	}

	logger.Debug("Engine opened",
		"repo", repoRoot,
		"storage", cfg.Storage.Backend,
		"factStore", cfg.Impact.FactStore,
		"signals", e.registry.Count(),
		"facts", e.index.Len(),
	)
	return e, nil
}

func (e *Engine) openRegistry() error {
	mode, err := signals.ParseMatchMode(e.cfg.Registry.Matcher)
	if err != nil {
		return cberrors.NewBridgeError(cberrors.ConfigInvalid, "registry matcher", err)
	}
	e.registry = signals.NewRegistry(
		signals.WithMatchMode(mode),
		signals.WithAutomatonThreshold(e.cfg.Registry.AutomatonThreshold),
	)
	for _, p := range e.cfg.Registry.Manifests {
		if _, err := e.LoadManifest(e.resolvePath(p)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) openStore(ctx context.Context) error {
	var backend mappingstore.Backend
	switch e.cfg.Storage.Backend {
	case "file":
		dir := e.cfg.Storage.Dir
		if dir == "" {
			dir = paths.RunsDir(e.repoRoot)
		}
		backend = mappingstore.NewFileBackend(e.resolvePath(dir))
	case "sqlite", "postgres":
		db, err := e.database(ctx, storage.Driver(e.cfg.Storage.Backend))
		if err != nil {
			return err
		}
		backend = storage.NewMappingRepository(db)
	case "object":
		o := e.cfg.Storage.Object
		b, err := mappingstore.NewObjectBackend(ctx, mappingstore.ObjectConfig{
			Endpoint:  o.Endpoint,
			AccessKey: o.AccessKey,
			SecretKey: o.SecretKey,
			UseSSL:    o.UseSSL,
			Region:    o.Region,
			Bucket:    o.Bucket,
			Prefix:    o.Prefix,
		})
		if err != nil {
			return cberrors.NewStorageError("open object store", err)
		}
		backend = b
	default:
		return cberrors.NewBridgeError(cberrors.ConfigInvalid, fmt.Sprintf("unknown storage backend %q", e.cfg.Storage.Backend), nil)
	}
	e.store = mappingstore.New(backend, e.logger)
	return nil
}

func (e *Engine) openFacts(ctx context.Context) error {
	switch e.cfg.Impact.FactStore {
	case "memory":
		e.index = impact.NewIndex()
		return nil
	case "sqlite", "postgres":
		db, err := e.database(ctx, storage.Driver(e.cfg.Impact.FactStore))
		if err != nil {
			return err
		}
		e.facts = storage.NewFactRepository(db)
	case "badger":
		path := e.cfg.Impact.BadgerPath
		if path == "" {
			path = paths.FactsDir(e.repoRoot)
		}
		bcfg := badgerstore.DefaultConfig(e.resolvePath(path))
		bcfg.Logger = e.logger
		fs, err := badgerstore.Open(bcfg)
		if err != nil {
			return cberrors.NewStorageError("open badger fact store", err)
		}
		e.badger = fs
		e.facts = fs
	default:
		return cberrors.NewBridgeError(cberrors.ConfigInvalid, fmt.Sprintf("unknown fact store %q", e.cfg.Impact.FactStore), nil)
	}

	idx, err := impact.Load(ctx, e.facts)
	if err != nil {
		return err
	}
	e.index = idx
	return nil
}

// database opens each driver at most once, so sqlite mapping records and
// sqlite facts share a file
func (e *Engine) database(ctx context.Context, driver storage.Driver) (*storage.DB, error) {
	if db, ok := e.dbs[driver]; ok {
		return db, nil
	}
	db, err := storage.Open(ctx, storage.Options{
		Driver: driver,
		Path:   paths.DatabasePath(e.repoRoot),
		URL:    e.cfg.Storage.PostgresURL,
	}, e.logger)
	if err != nil {
		return nil, err
	}
	e.dbs[driver] = db
	return db, nil
}

func (e *Engine) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(e.repoRoot, p)
}

// Close releases every database the engine opened
func (e *Engine) Close() error {
	var errs []error
	for driver, db := range e.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", driver, err))
		}
	}
	e.dbs = map[storage.Driver]*storage.DB{}
	if e.badger != nil {
		if err := e.badger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close badger: %w", err))
		}
		e.badger = nil
	}
	return errors.Join(errs...)
}

func (e *Engine) Config() *config.Config { return e.cfg }
func (e *Engine) Registry() *signals.Registry { return e.registry }
func (e *Engine) Resolver() *mapping.Resolver { return e.resolver }
func (e *Engine) Store() *mappingstore.Store { return e.store }
func (e *Engine) Index() *impact.Index { return e.index }
func (e *Engine) Logger() *slog.Logger { return e.logger }

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
