package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/duynhne/campus-portal/internal/core/domain"
)

// Provider is the hosted identity service.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*domain.User, error)
	SignUp(ctx context.Context, email, password string) (*domain.User, error)
	SignInWithIdp(ctx context.Context, cred Credential) (*domain.User, error)
	SendPasswordReset(ctx context.Context, email string) error
	Refresh(ctx context.Context, refreshToken string) (*domain.User, error)
}

// Listener receives the signed-in user, or nil, on every session change.
type Listener func(ctx context.Context, user *domain.User)

// Auth holds the session of one visitor and notifies listeners when it changes.
// Listeners added before Restore are not called until the session is settled;
// listeners added afterwards are called once with the current user.
type Auth struct {
	provider Provider

	mu        sync.Mutex
	user      *domain.User
	settled   bool
	listeners map[int]Listener
	nextID    int
}

// NewAuth creates a session holder backed by provider.
func NewAuth(provider Provider) *Auth {
	return &Auth{provider: provider, listeners: make(map[int]Listener)}
}

// OnAuthStateChanged registers fn and returns a function that removes it.
func (a *Auth) OnAuthStateChanged(ctx context.Context, fn Listener) (unsubscribe func()) {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	settled, user := a.settled, a.user
	a.mu.Unlock()

	if settled {
		fn(ctx, user)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.listeners, id)
			a.mu.Unlock()
		})
	}
}

// CurrentUser returns the signed-in user or nil.
func (a *Auth) CurrentUser() *domain.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.user == nil {
		return nil
	}
	u := *a.user
	return &u
}

// Settled reports whether the initial session restore has completed.
func (a *Auth) Settled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settled
}

// Restore re-establishes a persisted session. A nil persisted user settles the
// session as signed out. When the refresh fails the session settles signed out
// and the error is returned.
func (a *Auth) Restore(ctx context.Context, persisted *domain.User) error {
	if persisted == nil || persisted.RefreshToken == "" {
		a.set(ctx, nil)
		return nil
	}

	fresh, err := a.provider.Refresh(ctx, persisted.RefreshToken)
	if err != nil {
		a.set(ctx, nil)
		return fmt.Errorf("restore session for %q: %w", persisted.UID, err)
	}
	if fresh.UID != persisted.UID {
		a.set(ctx, nil)
		return &Error{Code: CodeTokenExpired, Message: "Session no longer valid"}
	}

	restored := *persisted
	restored.RefreshToken = fresh.RefreshToken
	a.set(ctx, &restored)
	return nil
}

// SignInWithPassword signs in with an email/password pair.
func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := a.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	a.set(ctx, user)
	return user, nil
}

// CreateUserWithPassword registers a new account and signs it in.
func (a *Auth) CreateUserWithPassword(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := a.provider.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	a.set(ctx, user)
	return user, nil
}

// SignInWithCredential signs in with a federated provider credential.
func (a *Auth) SignInWithCredential(ctx context.Context, cred Credential) (*domain.User, error) {
	user, err := a.provider.SignInWithIdp(ctx, cred)
	if err != nil {
		return nil, err
	}
	a.set(ctx, user)
	return user, nil
}

// SendPasswordResetEmail dispatches a password reset email.
func (a *Auth) SendPasswordResetEmail(ctx context.Context, email string) error {
	return a.provider.SendPasswordReset(ctx, email)
}

// SignOut drops the session. The identity service keeps no server-side state for it.
func (a *Auth) SignOut(ctx context.Context) error {
	a.set(ctx, nil)
	return nil
}

func (a *Auth) set(ctx context.Context, user *domain.User) {
	a.mu.Lock()
	a.user = user
	a.settled = true
	listeners := make([]Listener, 0, len(a.listeners))
	for _, l := range a.listeners {
		listeners = append(listeners, l)
	}
	a.mu.Unlock()

	for _, l := range listeners {
		var snapshot *domain.User
		if user != nil {
			u := *user
			snapshot = &u
		}
		l(ctx, snapshot)
	}
}
