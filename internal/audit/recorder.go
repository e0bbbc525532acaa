package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/millflow/millflow/internal/config"
	"github.com/millflow/millflow/internal/entity"
)

// Caller identifies who triggered an operation, as resolved by the auth
// layer plus request metadata.
type Caller struct {
	UserID    string
	Username  string
	Role      string
	IP        string
	UserAgent string
}

// Recorder emits audit events without blocking the triggering business
// operation. Entries go onto a bounded queue consumed by writer goroutines;
// a full queue drops the entry with a warning, and write failures are logged
// and swallowed. Callers never see an audit error.
type Recorder struct {
	store   *Store
	logger  *zap.Logger
	queue   chan *entity.AuditLog
	writers int
	timeout time.Duration

	// mu orders enqueue against close: enqueuers hold it read-side for the
	// closed check plus the send, Stop holds it write-side while closing.
	mu     sync.RWMutex
	closed bool

	wg sync.WaitGroup
}

// Module wires the audit store and recorder into Fx.
var Module = fx.Options(
	fx.Provide(NewStore),
	fx.Provide(NewRecorder),
	fx.Invoke(func(lc fx.Lifecycle, r *Recorder) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				r.Start()
				return nil
			},
			OnStop: r.Stop,
		})
	}),
)

// NewRecorder constructs a Recorder; Start must be called before entries are
// persisted.
func NewRecorder(cfg config.Config, store *Store, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:   store,
		logger:  logger,
		queue:   make(chan *entity.AuditLog, cfg.Audit.QueueSize),
		writers: cfg.Audit.Writers,
		timeout: cfg.Audit.WriteTimeout,
	}
}

// Start launches the writer goroutines.
func (r *Recorder) Start() {
	for i := 0; i < r.writers; i++ {
		r.wg.Add(1)
		go r.run()
	}
	r.logger.Info("audit recorder started", zap.Int("writers", r.writers), zap.Int("queue", cap(r.queue)))
}

// Stop drains the queue and waits for the writers, bounded by ctx.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		r.logger.Info("audit recorder stopped")
		return nil
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for entry := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.store.Insert(ctx, entry); err != nil {
			r.logger.Error("audit write failed",
				zap.String("action", entry.Action),
				zap.String("resource", entry.Resource),
				zap.String("resource_id", entry.ResourceID),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// Create records a successful create with a summary of the created fields.
func (r *Recorder) Create(resource, resourceID string, fields map[string]any, caller Caller) {
	r.enqueue(newEntry(entity.AuditActionCreate, resource, resourceID, fields, caller))
}

// Update records a successful update with the old and new values.
func (r *Recorder) Update(resource, resourceID string, oldValues, newValues map[string]any, caller Caller) {
	details := map[string]any{"old": oldValues, "new": newValues}
	r.enqueue(newEntry(entity.AuditActionUpdate, resource, resourceID, details, caller))
}

// Delete records a deletion together with the last-known snapshot. The
// snapshot is the only surviving record of the row, so callers capture it
// before the physical delete.
func (r *Recorder) Delete(resource, resourceID string, snapshot map[string]any, caller Caller) {
	r.enqueue(newEntry(entity.AuditActionDelete, resource, resourceID, snapshot, caller))
}

// View records a read of a resource.
func (r *Recorder) View(resource, resourceID string, caller Caller) {
	r.enqueue(newEntry(entity.AuditActionView, resource, resourceID, nil, caller))
}

// StatusChange records a state transition.
func (r *Recorder) StatusChange(resource, resourceID, from, to string, caller Caller) {
	details := map[string]any{"from": from, "to": to}
	r.enqueue(newEntry(entity.AuditActionStatusChange, resource, resourceID, details, caller))
}

// Error records a failed operation.
func (r *Recorder) Error(action, resource, message string, caller Caller) {
	entry := newEntry(entity.AuditActionError, resource, "", map[string]any{
		"attempted_action": action,
		"message":          message,
	}, caller)
	entry.Success = false
	entry.Severity = entity.AuditSeverityError
	r.enqueue(entry)
}

func newEntry(action, resource, resourceID string, details map[string]any, caller Caller) *entity.AuditLog {
	return &entity.AuditLog{
		Timestamp:  time.Now().UTC(),
		UserID:     caller.UserID,
		Username:   caller.Username,
		UserRole:   caller.Role,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    details,
		Success:    true,
		Severity:   entity.AuditSeverityInfo,
		IPAddress:  caller.IP,
		UserAgent:  caller.UserAgent,
	}
}

func (r *Recorder) enqueue(entry *entity.AuditLog) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	// The send never blocks, so holding the read lock across it cannot
	// stall Stop.
	select {
	case r.queue <- entry:
	default:
		r.logger.Warn("audit queue full; dropping entry",
			zap.String("action", entry.Action),
			zap.String("resource", entry.Resource),
			zap.String("resource_id", entry.ResourceID),
		)
	}
}
