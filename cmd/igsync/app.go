package main

import (
	"context"
	"fmt"
	"time"

	"igsync/internal/journal"
	"igsync/pkg/airtable"
	"igsync/pkg/checkpoint"
	"igsync/pkg/config"
	"igsync/pkg/ingest"
	"igsync/pkg/instagram"
	"igsync/pkg/logger"
	"igsync/pkg/ratelimit"
	"igsync/pkg/store"
)

// app is the fully wired sync pipeline behind the run, account, daemon and
// snapshot commands.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	store   *store.Adapter
	orch    *ingest.Orchestrator
	journal *journal.Postgres
	closers []func() error
}

// loadConfig resolves the config with ${secret:NAME} placeholders backed by
// the secret store. A secret store that cannot be opened only matters if the
// file actually references a secret.
func (o *rootOptions) loadConfig(extra map[string]interface{}) (*config.Config, error) {
	flags := o.flags()
	for k, v := range extra {
		flags[k] = v
	}

	var resolver config.SecretResolver
	if secrets, err := newSecretManager(); err == nil {
		resolver = secrets
	}
	return config.LoadWithSecrets(o.configFile, flags, resolver)
}

// newApp loads configuration and builds every component in dependency order
func (o *rootOptions) newApp(ctx context.Context, extra map[string]interface{}, opts ingest.Options) (*app, error) {
	cfg, err := o.loadConfig(extra)
	if err != nil {
		return nil, err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	a := &app{cfg: cfg, log: log}

	shared := false
	govOpts := []ratelimit.Option{ratelimit.WithLogger(log.WithField("component", "governor"))}
	if cfg.RateLimits.RedisURL != "" {
		client, err := ratelimit.NewRedisClient(ctx, cfg.RateLimits.RedisURL)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, using the local rate window only")
		} else {
			a.closers = append(a.closers, client.Close)
			key := "igsync:ratelimit:" + cfg.Instagram.Host
			govOpts = append(govOpts, ratelimit.WithSharedWindow(
				ratelimit.NewRedisWindow(client, key, cfg.RateLimits.RequestsPerMinute, time.Minute)))
			shared = true
		}
	}
	governor := ratelimit.NewGovernor(cfg.RateLimits, govOpts...)

	fetcher := instagram.NewClient(cfg.Instagram, cfg.Retry, governor,
		instagram.WithLogger(log.WithField("component", "instagram")))

	records := airtable.NewClient(cfg.Airtable, cfg.Retry,
		airtable.WithLogger(log.WithField("component", "airtable")))
	a.store = store.New(records, cfg.Airtable, store.WithLogger(log.WithField("component", "store")))

	checkpoints, err := checkpoint.NewManager(cfg.Sync.CheckpointDir, cfg.Airtable.BaseID)
	if err != nil {
		a.Close()
		return nil, err
	}

	orchOpts := []ingest.Option{
		ingest.WithCheckpoints(checkpoints),
		ingest.WithLogger(log.WithField("component", "ingest")),
	}
	if cfg.Journal.DatabaseURL != "" {
		j, err := journal.Open(ctx, cfg.Journal.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.journal = j
		a.closers = append(a.closers, j.Close)
		orchOpts = append(orchOpts, ingest.WithJournal(j))
	}

	opts.ScrapeContent = cfg.Sync.ScrapeContent
	opts.MaxRecords = cfg.Sync.MaxRecords
	opts.MaxPostPages = cfg.Sync.MaxPostPages
	opts.BaseID = cfg.Airtable.BaseID
	a.orch = ingest.New(fetcher, a.store, opts, orchOpts...)

	logger.LogComponentStart(log, "igsync", map[string]interface{}{
		"version":             version,
		"base_id":             cfg.Airtable.BaseID,
		"requests_per_minute": cfg.RateLimits.RequestsPerMinute,
		"scrape_content":      cfg.Sync.ScrapeContent,
		"shared_rate_window":  shared,
		"journal":             a.journal != nil,
	})
	return a, nil
}

// Close releases connections in reverse order
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("Failed to close resource")
		}
	}
	a.closers = nil
}
