package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/cache"
	"bilancio/internal/config"
	"bilancio/internal/core"
	"bilancio/internal/kv"
	"bilancio/internal/ledger"
	"bilancio/internal/log"
)

// cleanupInterval is how often expired sessions and cached values are swept.
const cleanupInterval = 5 * time.Minute

// Ledger is the wired ledger service together with the resources it owns.
type Ledger struct {
	Service  *ledger.Service
	Registry *ledger.Registry
	Store    kv.Store
	Taxonomy *core.Taxonomy
	Caches   *cache.Manager

	cleanup CleanupFunc
}

// Close releases the publisher, the cache sweeper and the store, in that order.
func (l *Ledger) Close() error {
	l.Caches.Stop()
	err := l.Service.Close()
	if l.cleanup != nil {
		err = errors.Join(err, l.cleanup())
	}
	return err
}

// Users lists the identities with persisted transactions, when the store can
// enumerate its keys.
func (l *Ledger) Users(ctx context.Context) ([]string, error) {
	lister, ok := l.Store.(kv.Lister)
	if !ok {
		return nil, kv.ErrNotListable
	}
	return ledger.Users(ctx, lister)
}

// OpenLedger builds the store selected by cfg and the ledger service on top
// of it. When publish is set and AMQP is configured, committed changes are
// published as events; a broker that cannot be reached only disables
// publishing.
func OpenLedger(ctx context.Context, cfg *config.Config, factory Factory, publish bool, logger *log.Logger) (*Ledger, error) {
	if logger == nil {
		logger = log.Default(log.ComponentBackend)
	}
	if factory == nil {
		factory = NewFactory(logger)
	}

	tax := core.DefaultTaxonomy()
	if cfg.CategoriesFile != "" {
		loaded, err := core.LoadTaxonomy(cfg.CategoriesFile)
		if err != nil {
			return nil, fmt.Errorf("load categories: %w", err)
		}
		tax = loaded
	}

	bcfg, err := FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := factory.CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	registry := ledger.NewRegistry(res.Store, cfg.SessionCacheSize, cfg.SessionTTL,
		ledger.WithTaxonomy(tax),
		ledger.WithLogger(logger))

	var publisher ledger.EventPublisher
	if publish && cfg.EventsEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		} else {
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
			publisher = client
		}
	}

	caches := cache.NewManager(logger)
	caches.Register(registry.Sessions())
	if res.Cache != nil {
		caches.Register(res.Cache)
	}
	caches.StartCleanup(cleanupInterval)

	return &Ledger{
		Service:  ledger.NewService(registry, publisher, logger),
		Registry: registry,
		Store:    res.Store,
		Taxonomy: tax,
		Caches:   caches,
		cleanup:  res.Cleanup,
	}, nil
}
