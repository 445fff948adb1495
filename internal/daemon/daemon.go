package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jfmyers9/tapedeck/internal/catalog"
	"github.com/jfmyers9/tapedeck/internal/control"
	"github.com/jfmyers9/tapedeck/internal/music"
	"github.com/jfmyers9/tapedeck/internal/session"
	"github.com/jfmyers9/tapedeck/internal/store"
	"github.com/rs/zerolog"
)

// Config holds daemon configuration
type Config struct {
	StateFile       string          // Path to the session snapshot file
	CatalogDB       string          // Path to the track catalog database
	SocketPath      string          // Path to the control socket
	SaveInterval    time.Duration   // How often pending snapshot writes are flushed
	PersistInterval time.Duration   // Minimum time between snapshot writes
	Session         session.Options // Playback session tuning
}

// Daemon owns the playback session and exposes it over the control socket
type Daemon struct {
	config  Config
	engine  music.Engine
	catalog *catalog.Catalog
	store   *store.FileStore
	session *session.Session
	server  *control.Server
	saver   *Autosaver
	logger  zerolog.Logger
}

// New creates a new Daemon instance
func New(cfg Config, engine music.Engine, logger zerolog.Logger) (*Daemon, error) {
	// Open catalog
	cat, err := catalog.Open(cfg.CatalogDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	st := store.NewFileStore(cfg.StateFile, cfg.PersistInterval, logger)
	sess := session.New(engine, cat, cfg.Session, logger)

	return &Daemon{
		config:  cfg,
		engine:  engine,
		catalog: cat,
		store:   st,
		session: sess,
		server:  control.NewServer(cfg.SocketPath, sess, cat, logger),
		saver:   NewAutosaver(sess, st, cfg.SaveInterval, logger),
		logger:  logger.With().Str("component", "daemon").Logger(),
	}, nil
}

// Session returns the playback session
func (d *Daemon) Session() *session.Session {
	return d.session
}

// Catalog returns the track catalog
func (d *Daemon) Catalog() *catalog.Catalog {
	return d.catalog
}

// Run starts the daemon and blocks until shutdown signal received
func (d *Daemon) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Handle first signal gracefully, second signal forces exit
	go func() {
		<-sigChan
		d.logger.Info().Msg("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// Second signal forces exit
		<-sigChan
		d.logger.Warn().Msg("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	// Run the daemon
	if err := d.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// run restores the last session and serves it until ctx is cancelled
func (d *Daemon) run(ctx context.Context) error {
	d.logger.Info().Msg("Starting daemon")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	// Start session loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.session.Run(ctx); err != nil {
			d.logger.Error().Err(err).Msg("Session error")
		}
	}()

	// Restore before anything can observe or drive the session
	snap := d.store.Load(ctx)
	if err := d.session.Restore(ctx, snap); err != nil && ctx.Err() == nil {
		d.logger.Warn().Err(err).Msg("Failed to restore session")
	} else {
		st := d.session.Last()
		d.logger.Info().
			Int("queue", len(st.Queue)).
			Int("index", st.CurrentIndex).
			Str("mode", st.Mode.String()).
			Msg("Session restored")
	}

	// Start autosave
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.saver.Run(ctx)
	}()

	// Start control server; a failure to listen takes the daemon down
	var serveErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.server.Serve(ctx); err != nil {
			d.logger.Error().Err(err).Msg("Control server error")
			serveErr = err
			cancel()
		}
	}()

	// Wait for all goroutines to finish
	wg.Wait()

	d.logger.Info().Msg("Daemon stopped")
	return serveErr
}

// Shutdown flushes the session snapshot and releases the catalog and engine
func (d *Daemon) Shutdown() error {
	d.logger.Info().Msg("Shutting down daemon")

	var errs []error
	if err := d.store.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush session: %w", err))
	}
	if err := d.engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close engine: %w", err))
	}
	if err := d.catalog.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close catalog: %w", err))
	}

	return errors.Join(errs...)
}
