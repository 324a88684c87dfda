package main

import (
	"context"
	"sync"
	"time"

	"github.com/bastiangx/mentionserve/internal/logger"
	"github.com/bastiangx/mentionserve/internal/utils"
	"github.com/bastiangx/mentionserve/pkg/catalog"
	"github.com/bastiangx/mentionserve/pkg/config"
	"github.com/bastiangx/mentionserve/pkg/engine"
	"github.com/bastiangx/mentionserve/pkg/searchdb"
	"github.com/bastiangx/mentionserve/pkg/server"
	"github.com/bastiangx/mentionserve/pkg/suggest"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

const seedTimeout = 30 * time.Second

// overrides are flag values that win over the config file.
type overrides struct {
	catalog string
	db      string
}

// runtime owns the loaded config and its item source, and rebuilds both on
// config reloads.
type runtime struct {
	configPath string
	ov         overrides

	mu      sync.Mutex
	cfg     *config.Config
	static  *suggest.Catalog
	store   *searchdb.Store
	source  string
	watcher *config.Watcher

	closeOnce sync.Once
}

func newRuntime(configPath string, ov overrides) *runtime {
	return &runtime{configPath: configPath, ov: ov}
}

func (rt *runtime) catalogPath(cfg *config.Config) string {
	if rt.ov.catalog != "" {
		return utils.GetAbsolutePath(rt.ov.catalog)
	}
	return cfg.CatalogPath(rt.configPath)
}

func (rt *runtime) dbPath(cfg *config.Config) string {
	if rt.ov.db != "" {
		return rt.ov.db
	}
	if cfg.Search.DBPath == "" {
		return ""
	}
	return cfg.SearchDBPath(rt.configPath)
}

// load builds the item source for cfg and swaps it in. The returned func
// releases the previous source; call it once no engine uses it.
func (rt *runtime) load(cfg *config.Config) (func(), error) {
	var (
		static *suggest.Catalog
		store  *searchdb.Store
		source string
	)
	catPath := rt.catalogPath(cfg)

	if path := rt.dbPath(cfg); path != "" {
		s, err := searchdb.Open(path)
		if err != nil {
			return nil, err
		}
		s.SetFetchLimit(cfg.Search.FetchLimit)
		if err := seed(s, catPath); err != nil {
			s.Close()
			return nil, err
		}
		store, source = s, "search "+path
	} else {
		static = suggest.NewCatalog(cfg.MatchMode())
		stats, err := catalog.NewLoader(catPath).Load(static)
		if err != nil {
			log.Warnf("No catalog loaded from %s: %v. Running with no items...", catPath, err)
		} else {
			log.Debugf("Catalog: %d items in %d files", stats.Items, stats.Files)
		}
		source = "static " + catPath
	}

	rt.mu.Lock()
	old := rt.store
	rt.cfg, rt.static, rt.store, rt.source = cfg, static, store, source
	rt.mu.Unlock()

	return func() {
		if old != nil {
			if err := old.Close(); err != nil {
				log.Warnf("Closing previous search db: %v", err)
			}
		}
	}, nil
}

// seed fills an empty database from the catalog.
func seed(s *searchdb.Store, catPath string) error {
	ctx, cancel := context.WithTimeout(context.Background(), seedTimeout)
	defer cancel()
	n, err := s.Count(ctx)
	if err != nil {
		return errors.Wrap(err, "count search items")
	}
	if n > 0 {
		log.Debugf("Search db holds %d items", n)
		return nil
	}
	if !utils.FileExists(catPath) {
		log.Warnf("Search db is empty and no catalog at %s", catPath)
		return nil
	}
	stats, err := catalog.NewLoader(catPath).Load(s)
	if err != nil {
		return errors.Wrapf(err, "seed search db from %s", catPath)
	}
	log.Debugf("Seeded search db with %d items", stats.Items)
	return nil
}

func (rt *runtime) describe() string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.source
}

// factory captures the current config and source.
func (rt *runtime) factory() server.EngineFactory {
	rt.mu.Lock()
	cfg, static, store := rt.cfg, rt.static, rt.store
	rt.mu.Unlock()

	return func(doc engine.Document, cb engine.Callbacks) (*engine.Engine, error) {
		opts, err := cfg.EngineOptions()
		if err != nil {
			return nil, err
		}
		if store != nil {
			opts.Search = store
		} else {
			opts.Static = static
		}
		opts.Callbacks = cb
		opts.Logger = logger.New("engine")
		return engine.New(doc, opts)
	}
}

// watch calls apply after every successful config reload. Without a config
// file there is nothing to watch.
func (rt *runtime) watch(apply func()) {
	if rt.configPath == "" {
		return
	}
	w, err := config.NewWatcher(rt.configPath)
	if err != nil {
		log.Warnf("Config hot reload disabled: %v", err)
		return
	}
	w.OnReload(func(cfg *config.Config) {
		release, err := rt.load(cfg)
		if err != nil {
			log.Errorf("Reload failed, keeping the previous config: %v", err)
			return
		}
		apply()
		release()
		log.Info("Config reloaded")
	})
	rt.mu.Lock()
	rt.watcher = w
	rt.mu.Unlock()
}

func (rt *runtime) close() {
	rt.closeOnce.Do(func() {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		if rt.watcher != nil {
			rt.watcher.Close()
		}
		if rt.store != nil {
			rt.store.Close()
		}
	})
}
