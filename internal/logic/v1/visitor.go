package v1

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/duynhne/campus-portal/internal/core/domain"
	"github.com/duynhne/campus-portal/internal/identity"
	"github.com/duynhne/campus-portal/middleware"
)

// Visitor is the in-memory application state of one browser. Flow and Gate are
// independent authorization contexts and never consult each other.
type Visitor struct {
	ID      string
	Session *identity.Auth
	Flow    *Flow
	Gate    *Gate

	restoreOnce sync.Once
	mu          sync.Mutex
	lastSeen    time.Time
}

// Restore settles the identity session from a persisted user exactly once per
// visitor. Later calls are no-ops.
func (v *Visitor) Restore(ctx context.Context, persisted *domain.User) (restored bool, err error) {
	v.restoreOnce.Do(func() {
		restored = true
		err = v.Session.Restore(ctx, persisted)
	})
	return restored, err
}

func (v *Visitor) touch(now time.Time) {
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()
}

func (v *Visitor) idleSince(now time.Time) time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return now.Sub(v.lastSeen)
}

func (v *Visitor) close() {
	v.Flow.Stop()
	v.Gate.Stop()
}

// VisitorFactory builds the state of a new visitor.
type VisitorFactory struct {
	Provider   identity.Provider
	Store      domain.ProfileStore
	Rules      ProfileRules
	GateSecret string
	GateWindow time.Duration
	Logger     *zap.Logger
}

// New builds a visitor whose flow is subscribed to its own session.
func (f VisitorFactory) New(ctx context.Context, id string) *Visitor {
	session := identity.NewAuth(f.Provider)
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	flow := NewFlow(session, f.Store, f.Rules, logger.With(zap.String("visitor", id)))
	flow.Start(ctx)
	return &Visitor{
		ID:      id,
		Session: session,
		Flow:    flow,
		Gate:    NewGate(f.GateSecret, f.GateWindow),
	}
}

// Registry holds visitor state in process memory. Everything in it is lost on
// restart; only the persisted identity session survives, through the cookie.
type Registry struct {
	factory VisitorFactory
	now     func() time.Time

	mu       sync.Mutex
	visitors map[string]*Visitor
}

// NewRegistry creates an empty registry.
func NewRegistry(factory VisitorFactory) *Registry {
	return &Registry{
		factory:  factory,
		now:      time.Now,
		visitors: make(map[string]*Visitor),
	}
}

// Get returns the visitor for id, creating it when unknown.
func (r *Registry) Get(ctx context.Context, id string) *Visitor {
	r.mu.Lock()
	v, ok := r.visitors[id]
	if !ok {
		v = r.factory.New(context.WithoutCancel(ctx), id)
		r.visitors[id] = v
		middleware.SetActiveVisitors(len(r.visitors))
	}
	r.mu.Unlock()

	v.touch(r.now())
	return v
}

// Len returns the number of tracked visitors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visitors)
}

// Sweep drops visitors idle for longer than idle and returns how many were removed.
func (r *Registry) Sweep(idle time.Duration) int {
	now := r.now()

	r.mu.Lock()
	var stale []*Visitor
	for id, v := range r.visitors {
		if v.idleSince(now) > idle {
			stale = append(stale, v)
			delete(r.visitors, id)
		}
	}
	middleware.SetActiveVisitors(len(r.visitors))
	r.mu.Unlock()

	for _, v := range stale {
		v.close()
	}
	return len(stale)
}

// Run sweeps idle visitors every interval until ctx is done, then drops them all.
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Sweep(-1)
			return nil
		case <-ticker.C:
			if n := r.Sweep(idle); n > 0 && r.factory.Logger != nil {
				r.factory.Logger.Debug("Swept idle visitors", zap.Int("count", n))
			}
		}
	}
}
