package follower

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"nhooyr.io/websocket"

	"orderchain/core"
	"orderchain/observability"
)

// Recorder persists streamed events.
type Recorder interface {
	Record(ctx context.Context, update core.EventUpdate) (bool, error)
}

type Config struct {
	URL            string
	Prefix         string
	ReconnectDelay time.Duration
	MaxReconnect   time.Duration
	Logger         *slog.Logger
}

// Follower tails the node event stream and hands every update to a Recorder.
// It resumes from the last cursor it saw after a dropped connection.
type Follower struct {
	cfg      Config
	recorder Recorder
	logger   *slog.Logger
	metrics  *observability.IndexerMetrics

	cursor string
}

func New(cfg Config, recorder Recorder) (*Follower, error) {
	if recorder == nil {
		return nil, fmt.Errorf("follower: recorder required")
	}
	if _, err := url.Parse(cfg.URL); err != nil || cfg.URL == "" {
		return nil, fmt.Errorf("follower: invalid stream url %q", cfg.URL)
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxReconnect < cfg.ReconnectDelay {
		cfg.MaxReconnect = cfg.ReconnectDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Follower{
		cfg:      cfg,
		recorder: recorder,
		logger:   logger.With("component", "follower"),
		metrics:  observability.Indexer(),
	}, nil
}

// Cursor returns the sequence of the last update handled.
func (f *Follower) Cursor() string { return f.cursor }

// Run follows the stream until ctx is cancelled. Connection failures back
// off exponentially up to MaxReconnect.
func (f *Follower) Run(ctx context.Context) error {
	delay := f.cfg.ReconnectDelay
	for {
		received, err := f.follow(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received {
			delay = f.cfg.ReconnectDelay
		}
		f.logger.Warn("event stream interrupted", "error", errString(err), "retry", delay.String())
		f.metrics.RecordReconnect()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if delay > f.cfg.MaxReconnect {
			delay = f.cfg.MaxReconnect
		}
	}
}

func (f *Follower) streamURL() string {
	u, _ := url.Parse(f.cfg.URL)
	q := u.Query()
	if f.cursor != "" {
		q.Set("cursor", f.cursor)
	}
	if f.cfg.Prefix != "" {
		q.Set("prefix", f.cfg.Prefix)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// follow runs one connection. It reports whether any update arrived.
func (f *Follower) follow(ctx context.Context) (bool, error) {
	conn, _, err := websocket.Dial(ctx, f.streamURL(), nil)
	if err != nil {
		return false, err
	}
	defer conn.Close(websocket.StatusNormalClosure, "indexer closing")
	f.logger.Info("following node events", "cursor", f.cursor)

	received := false
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return received, err
		}
		var update core.EventUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			f.logger.Error("discarding malformed update", "error", err.Error())
			continue
		}
		received = true
		if err := f.handle(ctx, update); err != nil {
			return received, err
		}
	}
}

func (f *Follower) handle(ctx context.Context, update core.EventUpdate) error {
	inserted, err := f.recorder.Record(ctx, update)
	if err != nil {
		return fmt.Errorf("record %s: %w", update.Cursor, err)
	}
	f.cursor = update.Cursor
	if inserted {
		f.metrics.RecordEvent(update.Event.Type, update.Event.Height)
		f.logger.Debug("indexed event",
			"kind", update.Event.Type,
			"order", update.Event.Attributes["id"],
			"height", update.Event.Height)
	}
	return nil
}

func errString(err error) string {
	if err == nil || errors.Is(err, context.Canceled) {
		return ""
	}
	return err.Error()
}
