package v1

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/duynhne/campus-portal/internal/core/domain"
	"github.com/duynhne/campus-portal/internal/identity"
	"github.com/duynhne/campus-portal/middleware"
)

// Step is the position of a visitor in the sign-in / profile flow.
type Step string

const (
	StepLoading      Step = "loading"
	StepLogin        Step = "login"
	StepRecoverySent Step = "recovery_sent"
	StepProfile      Step = "profile"
	StepClosed       Step = "closed"
)

// Authenticator is the identity session the flow drives.
type Authenticator interface {
	PasswordAuthenticator
	OnAuthStateChanged(ctx context.Context, fn identity.Listener) (unsubscribe func())
	SignInWithCredential(ctx context.Context, cred identity.Credential) (*domain.User, error)
	SendPasswordResetEmail(ctx context.Context, email string) error
	SignOut(ctx context.Context) error
}

// FlowView is a snapshot of the flow for rendering.
type FlowView struct {
	Step            Step                  `json:"step"`
	Open            bool                  `json:"open"`
	Submitting      bool                  `json:"submitting"`
	Authenticated   bool                  `json:"authenticated"`
	ProfileComplete bool                  `json:"profile_complete"`
	User            *domain.User          `json:"user,omitempty"`
	Profile         *domain.Profile       `json:"profile,omitempty"`
	Notifications   []domain.Notification `json:"notifications"`
}

// Flow is the identity and profile completion state machine of one visitor.
// Every outcome is reported as a notification; returned errors are for callers
// that need to branch (HTTP status, logging), never for display.
type Flow struct {
	auth   Authenticator
	store  domain.ProfileStore
	rules  ProfileRules
	logger *zap.Logger

	submitting atomic.Bool

	mu          sync.Mutex
	step        Step
	open        bool
	user        *domain.User
	profile     *domain.Profile
	notes       []domain.Notification
	unsubscribe func()
}

// NewFlow creates a flow in the loading step. Call Start to subscribe it to
// session changes.
func NewFlow(auth Authenticator, store domain.ProfileStore, rules ProfileRules, logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		auth:   auth,
		store:  store,
		rules:  rules,
		logger: logger,
		step:   StepLoading,
	}
}

// Start subscribes to session changes. The flow stays in StepLoading until the
// first notification arrives.
func (f *Flow) Start(ctx context.Context) {
	unsubscribe := f.auth.OnAuthStateChanged(ctx, f.handleSession)
	f.mu.Lock()
	f.unsubscribe = unsubscribe
	f.mu.Unlock()
}

// Stop tears down the session subscription.
func (f *Flow) Stop() {
	f.mu.Lock()
	unsubscribe := f.unsubscribe
	f.unsubscribe = nil
	f.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (f *Flow) handleSession(ctx context.Context, user *domain.User) {
	if user == nil {
		f.mu.Lock()
		f.user, f.profile = nil, nil
		f.step, f.open = StepLogin, false
		f.mu.Unlock()
		return
	}

	profile, err := f.store.Get(ctx, user.UID)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = user
	f.profile = profile
	switch {
	case err != nil:
		f.logger.Error("Failed to fetch profile", zap.String("uid", user.UID), zap.Error(err))
		f.notify(domain.Failure("Error", "Could not load your profile, please try again"))
		f.step, f.open = StepProfile, true
	case profile == nil || !profile.ProfileComplete:
		f.step, f.open = StepProfile, true
	default:
		f.step, f.open = StepClosed, false
	}
}

// Open shows the modal.
func (f *Flow) Open() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = true
}

// Dismiss hides the modal. The profile step cannot be dismissed.
func (f *Flow) Dismiss() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step == StepProfile {
		return fmt.Errorf("dismiss in step %s: %w", f.step, domain.ErrInvalidTransition)
	}
	f.open = false
	return nil
}

// SignInFederated signs in through a federated provider.
func (f *Flow) SignInFederated(ctx context.Context, cred identity.Credential) error {
	ctx, span := f.startSpan(ctx, "flow.sign_in_federated")
	defer span.End()

	if err := f.begin(StepLogin); err != nil {
		return err
	}
	defer f.end()

	if _, err := f.auth.SignInWithCredential(ctx, cred); err != nil {
		span.RecordError(err)
		middleware.RecordAuthAttempt("federated", "failure")
		f.logger.Info("Federated sign-in failed", zap.String("code", identity.CodeOf(err)), zap.Error(err))
		f.fail(err)
		return err
	}

	middleware.RecordAuthAttempt("federated", "success")
	f.mu.Lock()
	f.notify(domain.Info("Welcome", "Signed in with "+providerName(cred.ProviderID)))
	if f.step != StepProfile {
		f.step, f.open = StepClosed, false
	}
	f.mu.Unlock()
	return nil
}

// SignInOrRegister signs in with email/password, registering the account when
// the identity service reports it unknown.
func (f *Flow) SignInOrRegister(ctx context.Context, email, password string) error {
	ctx, span := f.startSpan(ctx, "flow.sign_in_or_register")
	defer span.End()

	if err := f.begin(StepLogin); err != nil {
		return err
	}
	defer f.end()

	_, resolution, err := ResolveCredentials(ctx, f.auth, strings.TrimSpace(email), password)
	if err != nil {
		span.RecordError(err)
		middleware.RecordAuthAttempt("password", "failure")
		f.logger.Info("Email sign-in failed", zap.String("code", identity.CodeOf(err)), zap.Error(err))
		f.fail(err)
		return err
	}

	span.SetAttributes(attribute.String("resolution", resolution.String()))
	middleware.RecordAuthAttempt("password", resolution.String())

	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case resolution == ResolvedRegistered:
		f.step, f.open = StepProfile, true
	case f.step != StepProfile:
		f.step, f.open = StepClosed, false
	}
	return nil
}

// ResetPassword sends a password reset email. An empty email is rejected
// locally without calling the identity service.
func (f *Flow) ResetPassword(ctx context.Context, email string) error {
	ctx, span := f.startSpan(ctx, "flow.reset_password")
	defer span.End()

	email = strings.TrimSpace(email)
	if email == "" {
		f.mu.Lock()
		f.notify(domain.Failure("Email required", "Enter your email to reset the password"))
		f.mu.Unlock()
		return domain.ErrEmailRequired
	}

	if err := f.begin(StepLogin); err != nil {
		return err
	}
	defer f.end()

	if err := f.auth.SendPasswordResetEmail(ctx, email); err != nil {
		span.RecordError(err)
		middleware.RecordAuthAttempt("password_reset", "failure")
		f.fail(err)
		return err
	}

	middleware.RecordAuthAttempt("password_reset", "success")
	f.mu.Lock()
	f.step = StepRecoverySent
	f.mu.Unlock()
	return nil
}

// BackToLogin leaves the recovery confirmation.
func (f *Flow) BackToLogin() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepRecoverySent {
		return fmt.Errorf("back to login in step %s: %w", f.step, domain.ErrInvalidTransition)
	}
	f.step = StepLogin
	return nil
}

// CompleteProfile validates form and merges it into the user's profile record
// with the completeness flag set.
func (f *Flow) CompleteProfile(ctx context.Context, form domain.ProfileForm) error {
	ctx, span := f.startSpan(ctx, "flow.complete_profile")
	defer span.End()

	f.mu.Lock()
	user := f.user
	f.mu.Unlock()
	if user == nil {
		return domain.ErrNoSession
	}

	if err := f.begin(StepProfile); err != nil {
		return err
	}
	defer f.end()

	fields, err := f.rules.Validate(user, form)
	if err != nil {
		f.mu.Lock()
		switch {
		case errors.Is(err, domain.ErrInvalidName):
			f.notify(domain.Failure("Invalid name", fmt.Sprintf("At least %d characters", f.rules.MinNameLength)))
		case errors.Is(err, domain.ErrInvalidPhone):
			f.notify(domain.Failure("Invalid WhatsApp", fmt.Sprintf("Exactly %d digits", f.rules.PhoneDigits)))
		}
		f.mu.Unlock()
		return err
	}

	if err := f.store.Merge(ctx, user.UID, fields); err != nil {
		span.RecordError(err)
		f.logger.Error("Failed to save profile", zap.String("uid", user.UID), zap.Error(err))
		f.fail(err)
		return err
	}

	profile, err := f.store.Get(ctx, user.UID)
	if err != nil || profile == nil {
		f.logger.Warn("Profile saved but re-read failed", zap.String("uid", user.UID), zap.Error(err))
		profile = profileFromFields(user.UID, fields)
	}

	f.mu.Lock()
	f.profile = profile
	f.step, f.open = StepClosed, false
	f.notify(domain.Info("Profile completed", "Your details have been saved"))
	f.mu.Unlock()
	return nil
}

// Logout signs the visitor out of the identity service.
func (f *Flow) Logout(ctx context.Context) error {
	ctx, span := f.startSpan(ctx, "flow.logout")
	defer span.End()

	if err := f.auth.SignOut(ctx); err != nil {
		span.RecordError(err)
		f.fail(err)
		return err
	}

	f.mu.Lock()
	f.notify(domain.Info("Session closed", "Come back soon"))
	f.mu.Unlock()
	return nil
}

// View returns a snapshot of the flow. When drain is set the pending
// notifications are handed over and cleared.
func (f *Flow) View(drain bool) FlowView {
	f.mu.Lock()
	defer f.mu.Unlock()

	v := FlowView{
		Step:          f.step,
		Open:          f.open,
		Submitting:    f.submitting.Load(),
		Authenticated: f.user != nil,
		Notifications: append([]domain.Notification(nil), f.notes...),
	}
	if f.user != nil {
		u := *f.user
		v.User = &u
	}
	if f.profile != nil {
		p := *f.profile
		v.Profile = &p
		v.ProfileComplete = p.ProfileComplete
	}
	if drain {
		f.notes = nil
	}
	return v
}

// Notify queues n for the next view.
func (f *Flow) Notify(n domain.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notify(n)
}

// Step returns the current step.
func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// begin claims the submitting flag for an action allowed in step. The flag is
// claimed first and the step checked afterwards, so a step change cannot slip
// in between; on a mismatch the flag is released.
func (f *Flow) begin(step Step) error {
	if !f.submitting.CompareAndSwap(false, true) {
		return domain.ErrSubmitting
	}
	f.mu.Lock()
	current := f.step
	f.mu.Unlock()
	if current != step {
		f.submitting.Store(false)
		return fmt.Errorf("action for step %s in step %s: %w", step, current, domain.ErrInvalidTransition)
	}
	return nil
}

func (f *Flow) end() {
	f.submitting.Store(false)
}

// fail reports err to the visitor. Only identity service messages are shown
// verbatim; anything else may carry internal detail.
func (f *Flow) fail(err error) {
	msg := "Something went wrong, please try again"
	if identity.CodeOf(err) != "" {
		msg = identity.MessageOf(err)
	}
	f.mu.Lock()
	f.notify(domain.Failure("Error", msg))
	f.mu.Unlock()
}

// notify must be called with f.mu held.
func (f *Flow) notify(n domain.Notification) {
	f.notes = append(f.notes, n)
}

func (f *Flow) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return middleware.StartSpan(ctx, name, trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
}

func profileFromFields(uid string, fields domain.ProfileFields) *domain.Profile {
	str := func(key string) string {
		s, _ := fields[key].(string)
		return s
	}
	complete, _ := fields[domain.FieldProfileComplete].(bool)
	return &domain.Profile{
		UID:             uid,
		Email:           str(domain.FieldEmail),
		FullName:        str(domain.FieldFullName),
		WhatsApp:        str(domain.FieldWhatsApp),
		Address:         str(domain.FieldAddress),
		Reference:       str(domain.FieldReference),
		ProfileComplete: complete,
	}
}

func providerName(providerID string) string {
	switch providerID {
	case "google.com":
		return "Google"
	case "":
		return "your provider"
	default:
		return providerID
	}
}
