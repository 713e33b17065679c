// Package watch tails chat.db for new message rows and hands them, in ROWID
// order, to the dispatcher.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/matheus3301/imcoach/internal/bus"
	"github.com/matheus3301/imcoach/internal/imsg"
	"github.com/matheus3301/imcoach/internal/status"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Source is the read side of chat.db.
type Source interface {
	After(ctx context.Context, rowID int64, limit int) ([]imsg.RawRow, error)
	MaxRowID(ctx context.Context) (int64, error)
}

// Checkpointer persists the watcher position across restarts.
type Checkpointer interface {
	LastRowID(ctx context.Context) (int64, bool, error)
	SetLastRowID(ctx context.Context, id int64) error
}

// Options configures a Watcher.
type Options struct {
	// DBPath is the chat.db file; writes to it or its -wal sidecar trigger an
	// immediate poll. Empty disables file notifications.
	DBPath       string
	PollInterval time.Duration
	BatchSize    int
	// Resume starts from the persisted checkpoint instead of the current
	// end of the store.
	Resume bool
	// CheckpointSchedule is a cron spec for flushing the position.
	CheckpointSchedule string
}

// Error is the payload of watch.error events.
type Error struct {
	Err         string
	Consecutive int
}

// Watcher polls a Source and emits normalized messages on Messages().
type Watcher struct {
	src     Source
	cp      Checkpointer
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger
	opts    Options

	out     chan imsg.Message
	last    atomic.Int64
	flushed atomic.Int64
	fails   int

	cron   *cron.Cron
	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}
	stop   sync.Once
}

// New creates a watcher. cp, machine and b may be nil.
func New(src Source, cp Checkpointer, machine *status.Machine, b *bus.Bus, logger *zap.Logger, opts Options) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.CheckpointSchedule == "" {
		opts.CheckpointSchedule = "@every 10s"
	}
	return &Watcher{
		src:     src,
		cp:      cp,
		machine: machine,
		bus:     b,
		logger:  logger.Named("watch"),
		opts:    opts,
		out:     make(chan imsg.Message),
	}
}

// Messages returns the output stream. It is closed by Stop.
func (w *Watcher) Messages() <-chan imsg.Message {
	return w.out
}

// Position returns the highest ROWID emitted so far.
func (w *Watcher) Position() int64 {
	return w.last.Load()
}

// Start resolves the starting position and begins polling. Rows that exist
// before Start are skipped unless Resume finds a checkpoint.
func (w *Watcher) Start(ctx context.Context) error {
	start, err := w.startPosition(ctx)
	if err != nil {
		return err
	}
	w.last.Store(start)
	w.flushed.Store(start)

	w.cron = cron.New()
	if w.cp != nil {
		if _, err := w.cron.AddFunc(w.opts.CheckpointSchedule, func() { w.flush(context.Background()) }); err != nil {
			return fmt.Errorf("checkpoint schedule %q: %w", w.opts.CheckpointSchedule, err)
		}
	}

	var events <-chan fsnotify.Event
	if w.opts.DBPath != "" {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			err = fsw.Add(filepath.Dir(w.opts.DBPath))
			if err != nil {
				_ = fsw.Close()
			}
		}
		if err != nil {
			w.logger.Warn("file notifications unavailable, polling only", zap.Error(err))
		} else {
			w.fsw = fsw
			events = fsw.Events
		}
	}

	if w.machine != nil {
		if err := w.machine.Ensure(status.Watching, ""); err != nil {
			w.logger.Warn("status transition failed", zap.Error(err))
		}
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.cron.Start()
	go w.loop(ctx, events)

	w.logger.Info("watching message store",
		zap.String("path", w.opts.DBPath),
		zap.Int64("from_row", start),
		zap.Duration("poll_interval", w.opts.PollInterval))
	return nil
}

// Stop halts polling, flushes the checkpoint and closes Messages().
func (w *Watcher) Stop() {
	w.stop.Do(func() {
		if w.cancel == nil {
			close(w.out)
			return
		}
		w.cancel()
		<-w.done
		<-w.cron.Stop().Done()
		if w.fsw != nil {
			_ = w.fsw.Close()
		}
		w.flush(context.Background())
		close(w.out)
	})
}

func (w *Watcher) startPosition(ctx context.Context) (int64, error) {
	if w.opts.Resume && w.cp != nil {
		id, ok, err := w.cp.LastRowID(ctx)
		if err != nil {
			w.logger.Warn("checkpoint unreadable, starting from the end", zap.Error(err))
		} else if ok {
			return id, nil
		}
	}
	id, err := w.src.MaxRowID(ctx)
	if err != nil {
		return 0, fmt.Errorf("read start position: %w", err)
	}
	return id, nil
}

func (w *Watcher) loop(ctx context.Context, events <-chan fsnotify.Event) {
	defer close(w.done)

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if w.relevant(evt) {
				w.poll(ctx)
			}
		}
	}
}

func (w *Watcher) relevant(evt fsnotify.Event) bool {
	if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
		return false
	}
	return strings.HasPrefix(filepath.Base(evt.Name), filepath.Base(w.opts.DBPath))
}

// poll drains every row after the current position.
func (w *Watcher) poll(ctx context.Context) {
	for {
		rows, err := w.src.After(ctx, w.last.Load(), w.opts.BatchSize)
		if err != nil {
			if ctx.Err() == nil {
				w.failed(err)
			}
			return
		}
		w.recovered()

		for _, row := range rows {
			msg := imsg.Normalize(row)
			w.bus.Publish(bus.NewEvent(bus.KindIncoming, msg))
			select {
			case w.out <- msg:
			case <-ctx.Done():
				return
			}
			w.last.Store(row.RowID)
		}
		if len(rows) < w.opts.BatchSize {
			return
		}
	}
}

func (w *Watcher) failed(err error) {
	w.fails++
	w.logger.Error("poll failed", zap.Error(err), zap.Int("consecutive", w.fails))
	w.bus.Publish(bus.NewEvent(bus.KindWatchError, Error{Err: err.Error(), Consecutive: w.fails}))
	if w.machine != nil {
		if terr := w.machine.Ensure(status.Degraded, err.Error()); terr != nil {
			w.logger.Warn("status transition failed", zap.Error(terr))
		}
	}
}

func (w *Watcher) recovered() {
	if w.fails == 0 {
		return
	}
	w.logger.Info("poll recovered", zap.Int("after_failures", w.fails))
	w.fails = 0
	w.bus.Publish(bus.NewEvent(bus.KindWatchRecovered, nil))
	if w.machine != nil {
		if err := w.machine.Ensure(status.Watching, ""); err != nil {
			w.logger.Warn("status transition failed", zap.Error(err))
		}
	}
}

func (w *Watcher) flush(ctx context.Context) {
	if w.cp == nil {
		return
	}
	pos := w.last.Load()
	if pos == w.flushed.Load() {
		return
	}
	if err := w.cp.SetLastRowID(ctx, pos); err != nil {
		w.logger.Warn("checkpoint flush failed", zap.Error(err), zap.Int64("row", pos))
		return
	}
	w.flushed.Store(pos)
}
