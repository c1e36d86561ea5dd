package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/asakaida/epiguard/internal/repositories/postgres"
)

// RoleChangeHandler reacts to role permission changes
type RoleChangeHandler interface {
	// RoleChanged drops cached state derived from one role
	RoleChanged(ctx context.Context, roleID int64) error
}

// UserCacheFlusher drops every cached user
type UserCacheFlusher interface {
	InvalidateAll(ctx context.Context) error
}

// RoleWatcher keeps cached users consistent across instances.
// It uses PostgreSQL LISTEN/NOTIFY on the role change channel; when the
// connection drops, notifications may have been missed and every cached
// user is flushed.
type RoleWatcher struct {
	mu       sync.Mutex
	connStr  string
	listener *pq.Listener
	roles    RoleChangeHandler
	users    UserCacheFlusher
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopped  bool
}

// NewRoleWatcher creates a new RoleWatcher.
// connStr is the PostgreSQL connection string for LISTEN/NOTIFY.
func NewRoleWatcher(connStr string, roles RoleChangeHandler, users UserCacheFlusher, logger *slog.Logger) *RoleWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleWatcher{
		connStr: connStr,
		roles:   roles,
		users:   users,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start starts the LISTEN/NOTIFY listener
func (w *RoleWatcher) Start(ctx context.Context) error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			// Missed events are covered by the flush on reconnect
			w.logger.Warn("role watcher listener error", "event", ev, "error", err)
		}
	}

	listener := pq.NewListener(w.connStr, 10*time.Second, time.Minute, reportProblem)
	if err := listener.Listen(postgres.RoleChangesChannel); err != nil {
		listener.Close()
		return fmt.Errorf("failed to listen on %s: %w", postgres.RoleChangesChannel, err)
	}

	w.mu.Lock()
	w.listener = listener
	w.mu.Unlock()

	go w.run(ctx, listener.Notify)

	w.logger.Info("role watcher started", "channel", postgres.RoleChangesChannel)
	return nil
}

// Stop stops the watcher and closes the listener. It is safe to call twice.
func (w *RoleWatcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	listener := w.listener
	w.mu.Unlock()

	if listener == nil {
		return nil
	}
	<-w.doneCh
	return listener.Close()
}

// run processes incoming NOTIFY events until stopped
func (w *RoleWatcher) run(ctx context.Context, notify <-chan *pq.Notification) {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case n := <-notify:
			w.handle(ctx, n)
		case <-time.After(90 * time.Second):
			// Periodic ping to keep connection alive
			go func() {
				if err := w.listener.Ping(); err != nil {
					w.logger.Warn("role watcher ping failed", "error", err)
				}
			}()
		}
	}
}

// handle applies one notification. A nil notification signals a reconnect.
func (w *RoleWatcher) handle(ctx context.Context, n *pq.Notification) {
	if n == nil {
		if err := w.users.InvalidateAll(ctx); err != nil {
			w.logger.Error("failed to flush users after reconnect", "error", err)
			return
		}
		w.logger.Info("flushed cached users after listener reconnect")
		return
	}

	roleID, err := strconv.ParseInt(n.Extra, 10, 64)
	if err != nil {
		w.logger.Warn("ignoring malformed role change notification", "payload", n.Extra)
		return
	}

	if err := w.roles.RoleChanged(ctx, roleID); err != nil {
		w.logger.Error("failed to apply role change", "role_id", roleID, "error", err)
		return
	}
	w.logger.Debug("applied role change", "role_id", roleID)
}
