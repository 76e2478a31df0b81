package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vidyasagar/surfshell/internal/browser"
	"github.com/vidyasagar/surfshell/internal/cache"
	"github.com/vidyasagar/surfshell/internal/config"
	"github.com/vidyasagar/surfshell/internal/favicon"
	"github.com/vidyasagar/surfshell/internal/history"
	"github.com/vidyasagar/surfshell/internal/navigation"
	"github.com/vidyasagar/surfshell/internal/storage"
)

// runtime holds the collaborators shared by every command.
type runtime struct {
	cfg      *config.Config
	log      *zap.Logger
	db       *storage.DB
	settings *storage.Settings
	history  *history.Store
	icons    *cache.ImageCache
	fetcher  *browser.Fetcher
}

// openRuntime opens storage and loads history. A database that cannot be
// opened degrades to the JSON visit file rather than failing the command.
func openRuntime(ctx context.Context, cfg *config.Config, log *zap.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, log: log, fetcher: browser.NewFetcher()}

	settings, err := storage.LoadSettingsFrom(cfg.SettingsPath())
	if err != nil {
		log.Warn("settings unreadable, using defaults", zap.String("path", cfg.SettingsPath()), zap.Error(err))
	}
	rt.settings = settings

	var durable history.Durable
	db, err := storage.OpenDB(cfg.DataDir)
	if err != nil {
		log.Warn("opening database failed, falling back to file store", zap.Error(err))
		fs, ferr := storage.NewFileVisitStore(cfg.DataDir)
		if ferr != nil {
			return nil, fmt.Errorf("opening visit store: %w", errors.Join(err, ferr))
		}
		durable = fs
	} else {
		rt.db = db
		durable = storage.NewVisitStore(db)
	}

	rt.history = history.NewStore(durable,
		history.WithLogger(log),
		history.WithSaving(settings.SaveHistory))
	if err := rt.history.LoadHistory(ctx); err != nil {
		log.Warn("history unavailable", zap.Error(err))
	}

	icons, err := cache.New(cfg.CacheOptions())
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("creating favicon cache: %w", err)
	}
	rt.icons = icons
	return rt, nil
}

func (rt *runtime) resolver(opts ...favicon.Option) *favicon.Resolver {
	opts = append([]favicon.Option{favicon.WithLogger(rt.log)}, opts...)
	return favicon.NewResolver(rt.icons, rt.fetcher, opts...)
}

func (rt *runtime) controller(s navigation.Surface, settle bool) *navigation.Controller {
	delay := rt.cfg.SettleDelay
	if !settle {
		delay = 0
	}
	return navigation.NewController(s, rt.history,
		navigation.WithLogger(rt.log),
		navigation.WithSettleDelay(delay),
		navigation.WithLocationSaver(rt.settings),
		navigation.WithInitialLocation(rt.settings.LastURL, rt.settings.LastHost))
}

func (rt *runtime) Close() {
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.log.Warn("closing database failed", zap.Error(err))
		}
	}
}
