package session

import (
	"context"
	"sync"
	"time"

	"github.com/jfmyers9/tapedeck/internal/music"
	"github.com/rs/zerolog"
)

type loadRequest struct {
	ctx    context.Context
	cancel context.CancelFunc
	gen    uint64
	path   string
}

type loadResult struct {
	gen      uint64
	path     string
	duration time.Duration
	err      error
}

// loader runs engine loads off the session goroutine. Only the newest
// request is kept; submitting cancels the one before it.
type loader struct {
	engine  music.Engine
	timeout time.Duration
	results chan<- loadResult
	logger  zerolog.Logger

	mu     sync.Mutex
	next   *loadRequest
	cancel context.CancelFunc // cancels the newest request
	wake   chan struct{}
}

func newLoader(engine music.Engine, timeout time.Duration, results chan<- loadResult, logger zerolog.Logger) *loader {
	return &loader{
		engine:  engine,
		timeout: timeout,
		results: results,
		logger:  logger,
		wake:    make(chan struct{}, 1),
	}
}

// submit queues a load of path for generation gen
func (l *loader) submit(gen uint64, path string) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	if l.next != nil {
		l.logger.Debug().Uint64("gen", l.next.gen).Msg("Dropping superseded load")
	}
	l.cancel = cancel
	l.next = &loadRequest{ctx: ctx, cancel: cancel, gen: gen, path: path}
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// abort cancels whatever is queued or in flight
func (l *loader) abort() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.next = nil
}

func (l *loader) take() *loadRequest {
	l.mu.Lock()
	defer l.mu.Unlock()

	req := l.next
	l.next = nil
	return req
}

func (l *loader) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.abort()
			return
		case <-l.wake:
		}

		req := l.take()
		if req == nil {
			continue
		}

		start := time.Now()
		duration, err := l.engine.Load(req.ctx, req.gen, req.path)
		req.cancel()

		l.logger.Debug().
			Uint64("gen", req.gen).
			Str("path", req.path).
			Dur("took", time.Since(start)).
			Err(err).
			Msg("Load finished")

		select {
		case l.results <- loadResult{gen: req.gen, path: req.path, duration: duration, err: err}:
		case <-ctx.Done():
			return
		}
	}
}
