package v1

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/campus-portal/internal/core/domain"
	"github.com/duynhne/campus-portal/internal/core/repository/memory"
	"github.com/duynhne/campus-portal/internal/identity"
)

// fakeProvider is an in-memory identity service. Accounts maps email to password.
type fakeProvider struct {
	mu       sync.Mutex
	accounts map[string]string
	calls    map[string]int

	signInErr error
	block     chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{accounts: map[string]string{}, calls: map[string]int{}}
}

func (p *fakeProvider) count(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *fakeProvider) record(op string) {
	p.mu.Lock()
	p.calls[op]++
	p.mu.Unlock()
}

func (p *fakeProvider) SignInWithPassword(_ context.Context, email, password string) (*domain.User, error) {
	p.record("sign_in")
	if p.block != nil {
		<-p.block
	}
	if p.signInErr != nil {
		return nil, p.signInErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	stored, ok := p.accounts[email]
	if !ok {
		return nil, &identity.Error{Code: identity.CodeUserNotFound}
	}
	if stored != password {
		return nil, &identity.Error{Code: identity.CodeInvalidCredential}
	}
	return &domain.User{UID: "uid-" + email, Email: email, RefreshToken: "rt"}, nil
}

func (p *fakeProvider) SignUp(_ context.Context, email, password string) (*domain.User, error) {
	p.record("sign_up")
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[email]; ok {
		return nil, &identity.Error{Code: identity.CodeEmailInUse, Message: "The email address is already in use"}
	}
	p.accounts[email] = password
	return &domain.User{UID: "uid-" + email, Email: email, RefreshToken: "rt"}, nil
}

func (p *fakeProvider) SignInWithIdp(_ context.Context, cred identity.Credential) (*domain.User, error) {
	p.record("idp")
	if cred.IDToken == "" {
		return nil, &identity.Error{Code: identity.CodeInvalidCredential}
	}
	return &domain.User{UID: "uid-" + cred.IDToken, Email: cred.IDToken + "@gmail.com", RefreshToken: "rt"}, nil
}

func (p *fakeProvider) SendPasswordReset(_ context.Context, _ string) error {
	p.record("reset")
	return nil
}

func (p *fakeProvider) Refresh(_ context.Context, refreshToken string) (*domain.User, error) {
	p.record("refresh")
	if refreshToken == "" {
		return nil, &identity.Error{Code: identity.CodeTokenExpired}
	}
	return &domain.User{UID: "uid-ana@example.com", RefreshToken: refreshToken + "-next"}, nil
}

type failingStore struct{ err error }

func (s failingStore) Get(context.Context, string) (*domain.Profile, error) { return nil, s.err }

func (s failingStore) Merge(context.Context, string, domain.ProfileFields) error { return s.err }

type flowFixture struct {
	provider *fakeProvider
	auth     *identity.Auth
	store    *memory.ProfileStore
	flow     *Flow
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()
	provider := newFakeProvider()
	auth := identity.NewAuth(provider)
	store := memory.NewProfileStore(nil)
	flow := NewFlow(auth, store, testRules, nil)
	flow.Start(context.Background())
	t.Cleanup(flow.Stop)
	return &flowFixture{provider: provider, auth: auth, store: store, flow: flow}
}

func (fx *flowFixture) settleSignedOut(t *testing.T) {
	t.Helper()
	require.NoError(t, fx.auth.Restore(context.Background(), nil))
	require.Equal(t, StepLogin, fx.flow.Step())
}

func completeProfile(t *testing.T, store *memory.ProfileStore, uid string) {
	t.Helper()
	require.NoError(t, store.Merge(context.Background(), uid, domain.ProfileFields{
		domain.FieldFullName:        "Ana Torres",
		domain.FieldWhatsApp:        "+51987654321",
		domain.FieldProfileComplete: true,
	}))
}

func TestFlow_LoadingUntilSettled(t *testing.T) {
	fx := newFlowFixture(t)
	assert.Equal(t, StepLoading, fx.flow.Step())

	fx.settleSignedOut(t)
	view := fx.flow.View(false)
	assert.False(t, view.Open)
	assert.False(t, view.Authenticated)
}

func TestFlow_RegistersUnknownAccountAndAsksForProfile(t *testing.T) {
	fx := newFlowFixture(t)
	fx.settleSignedOut(t)

	require.NoError(t, fx.flow.SignInOrRegister(context.Background(), " new@example.com ", "secret1"))

	assert.Equal(t, 1, fx.provider.count("sign_in"))
	assert.Equal(t, 1, fx.provider.count("sign_up"))
	view := fx.flow.View(false)
	assert.Equal(t, StepProfile, view.Step)
	assert.True(t, view.Open)
	assert.True(t, view.Authenticated)
	assert.Equal(t, "new@example.com", view.User.Email)
}

func TestFlow_ExistingCompleteProfileCloses(t *testing.T) {
	fx := newFlowFixture(t)
	fx.settleSignedOut(t)
	fx.provider.accounts["ana@example.com"] = "pw123456"
	completeProfile(t, fx.store, "uid-ana@example.com")

	fx.flow.Open()
	require.NoError(t, fx.flow.SignInOrRegister(context.Background(), "ana@example.com", "pw123456"))

	view := fx.flow.View(false)
	assert.Equal(t, StepClosed, view.Step)
	assert.False(t, view.Open)
	assert.True(t, view.ProfileComplete)
	assert.Equal(t, "Ana", view.Profile.FirstName())
	assert.Zero(t, fx.provider.count("sign_up"))
}

func TestFlow_IncompleteProfileRoutesToProfile(t *testing.T) {
	fx := newFlowFixture(t)
	fx.settleSignedOut(t)
	fx.provider.accounts["ana@example.com"] = "pw123456"
	require.NoError(t, fx.store.Merge(context.Background(), "uid-ana@example.com", domain.ProfileFields{
		domain.FieldFullName:        "Ana",
		domain.FieldProfileComplete: false,
	}))

	require.NoError(t, fx.flow.SignInOrRegister(context.Background(), "ana@example.com", "pw123456"))

	assert.Equal(t, StepProfile, fx.flow.Step())
	assert.ErrorIs(t, fx.flow.Dismiss(), domain.ErrInvalidTransition)
	assert.True(t, fx.flow.View(false).Open)
}

func TestFlow_WrongPasswordOfExistingAccountFails(t *testing.T) {
	fx := newFlowFixture(t)
	fx.settleSignedOut(t)
	fx.provider.accounts["ana@example.com"] = "pw123456"

	err := fx.flow.SignInOrRegister(context.Background(), "ana@example.com", "nope")
	require.Error(t, err)
	assert.Equal(t, identity.CodeEmailInUse, identity.CodeOf(err))

	view := fx.flow.View(true)
	assert.Equal(t, StepLogin, view.Step)
	assert.False(t, view.Submitting)
	require.Len(t, view.Notifications, 1)
	assert.Equal(t, domain.SeverityDestructive, view.Notifications[0].Severity)
	assert.Empty(t, fx.flow.View(false).Notifications)
}

func TestFlow_NetworkFailureNeverRegisters(t *testing.T) {
	fx := newFlowFixture(t)
	fx.settleSignedOut(t)
	fx.provider.signInErr = &identity.Error{Code: identity.CodeNetwork}

	err := fx.flow.SignInOrRegister(context.Background(), "ana@example.com", "pw")
	assert.True(t, identity.HasCode(err, identity.CodeNetwork))
	assert.Zero(t, fx.provider.count("sign_up"))
	assert.Equal(t, StepLogin, fx.flow.Step())
}

func TestFlow_ConcurrentSubmissionIsRejected(t *testing.T) {
	fx := newFlowFixture(t)
	fx.settleSignedOut(t)
	fx.provider.accounts["ana@example.com"] = "pw123456"
	completeProfile(t, fx.store, "uid-ana@example.com")
	fx.provider.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- fx.flow.SignInOrRegister(context.Background(), "ana@example.com", "pw123456")
	}()

	require.Eventually(t, func() bool { return fx.flow.View(false).Submitting }, time.Second, time.Millisecond)
	assert.ErrorIs(t, fx.flow.SignInOrRegister(context.Background(), "ana@example.com", "pw123456"), domain.ErrSubmitting)
	assert.ErrorIs(t, fx.flow.ResetPassword(context.Background(), "ana@example.com"), domain.ErrSubmitting)

	close(fx.provider.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, fx.provider.count("sign_in"))
	assert.False(t, fx.flow.View(false).Submitting)
}

func TestFlow_FederatedSignIn(t *testing.T) {
	fx := newFlowFixture(t)
	fx.settleSignedOut(t)
	completeProfile(t, fx.store, "uid-ana")

	require.NoError(t, fx.flow.SignInFederated(context.Background(), identity.Credential{ProviderID: "google.com", IDToken: "ana"}))

	view := fx.flow.View(true)
	assert.Equal(t, StepClosed, view.Step)
	require.Len(t, view.Notifications, 1)
	assert.Equal(t, "Signed in with Google", view.Notifications[0].Description)
}

func TestFlow_FederatedFirstLoginNeedsProfile(t *testing.T) {
	fx := newFlowFixture(t)
	fx.settleSignedOut(t)

	require.NoError(t, fx.flow.SignInFederated(context.Background(), identity.Credential{ProviderID: "google.com", IDToken: "new"}))
	assert.Equal(t, StepProfile, fx.flow.Step())
}

func TestFlow_ResetPassword(t *testing.T) {
	fx := newFlowFixture(t)
	fx.settleSignedOut(t)

	err := fx.flow.ResetPassword(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrEmailRequired)
	assert.Zero(t, fx.provider.count("reset"))
	view := fx.flow.View(true)
	assert.Equal(t, StepLogin, view.Step)
	require.Len(t, view.Notifications, 1)

	require.NoError(t, fx.flow.ResetPassword(context.Background(), "ana@example.com"))
	assert.Equal(t, 1, fx.provider.count("reset"))
	assert.Equal(t, StepRecoverySent, fx.flow.Step())

	require.NoError(t, fx.flow.BackToLogin())
	assert.Equal(t, StepLogin, fx.flow.Step())
	assert.ErrorIs(t, fx.flow.BackToLogin(), domain.ErrInvalidTransition)
}

func TestFlow_CompleteProfile(t *testing.T) {
	fx := newFlowFixture(t)
	fx.settleSignedOut(t)
	require.NoError(t, fx.flow.SignInOrRegister(context.Background(), "new@example.com", "secret1"))
	uid := "uid-new@example.com"
	require.NoError(t, fx.store.Merge(context.Background(), uid, domain.ProfileFields{"campus": "Lima"}))

	err := fx.flow.CompleteProfile(context.Background(), domain.ProfileForm{FullName: "Al", WhatsApp: "987654321"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
	raw, _ := fx.store.Raw(uid)
	assert.NotContains(t, raw, domain.FieldFullName)
	assert.Equal(t, StepProfile, fx.flow.Step())

	err = fx.flow.CompleteProfile(context.Background(), domain.ProfileForm{FullName: "Nuevo Alumno", WhatsApp: "98765"})
	assert.ErrorIs(t, err, domain.ErrInvalidPhone)

	require.NoError(t, fx.flow.CompleteProfile(context.Background(), domain.ProfileForm{
		FullName: "Nuevo Alumno",
		WhatsApp: "987 654 321",
		Address:  "Av. Ejemplo 123",
	}))

	view := fx.flow.View(false)
	assert.Equal(t, StepClosed, view.Step)
	assert.False(t, view.Open)
	assert.True(t, view.ProfileComplete)
	assert.Equal(t, "+51987654321", view.Profile.WhatsApp)

	raw, ok := fx.store.Raw(uid)
	require.True(t, ok)
	assert.Equal(t, "Lima", raw["campus"])
	assert.Equal(t, true, raw[domain.FieldProfileComplete])
	assert.Equal(t, "new@example.com", raw[domain.FieldEmail])
}

func TestFlow_CompleteProfileRequiresSession(t *testing.T) {
	fx := newFlowFixture(t)
	fx.settleSignedOut(t)

	err := fx.flow.CompleteProfile(context.Background(), domain.ProfileForm{FullName: "Nuevo Alumno", WhatsApp: "987654321"})
	assert.ErrorIs(t, err, domain.ErrNoSession)
}

func TestFlow_StoreFailureRoutesToProfile(t *testing.T) {
	provider := newFakeProvider()
	provider.accounts["ana@example.com"] = "pw123456"
	auth := identity.NewAuth(provider)
	flow := NewFlow(auth, failingStore{err: errors.New("connection refused")}, testRules, nil)
	flow.Start(context.Background())
	defer flow.Stop()
	require.NoError(t, auth.Restore(context.Background(), nil))

	require.NoError(t, flow.SignInOrRegister(context.Background(), "ana@example.com", "pw123456"))

	view := flow.View(true)
	assert.Equal(t, StepProfile, view.Step)
	require.NotEmpty(t, view.Notifications)
	assert.Equal(t, domain.SeverityDestructive, view.Notifications[0].Severity)

	err := flow.CompleteProfile(context.Background(), domain.ProfileForm{FullName: "Ana Torres", WhatsApp: "987654321"})
	require.Error(t, err)
	assert.Equal(t, StepProfile, flow.Step())
}

func TestFlow_Logout(t *testing.T) {
	fx := newFlowFixture(t)
	fx.settleSignedOut(t)
	fx.provider.accounts["ana@example.com"] = "pw123456"
	completeProfile(t, fx.store, "uid-ana@example.com")
	require.NoError(t, fx.flow.SignInOrRegister(context.Background(), "ana@example.com", "pw123456"))

	require.NoError(t, fx.flow.Logout(context.Background()))

	view := fx.flow.View(false)
	assert.Equal(t, StepLogin, view.Step)
	assert.False(t, view.Authenticated)
	assert.Nil(t, view.Profile)
	assert.Nil(t, fx.auth.CurrentUser())
}

func TestFlow_RestoredSession(t *testing.T) {
	fx := newFlowFixture(t)
	completeProfile(t, fx.store, "uid-ana@example.com")

	err := fx.auth.Restore(context.Background(), &domain.User{UID: "uid-ana@example.com", Email: "ana@example.com", RefreshToken: "rt"})
	require.NoError(t, err)

	view := fx.flow.View(false)
	assert.Equal(t, StepClosed, view.Step)
	assert.Equal(t, "rt-next", fx.auth.CurrentUser().RefreshToken)
}

func TestFlow_WrongStepReleasesSubmitting(t *testing.T) {
	fx := newFlowFixture(t)
	fx.settleSignedOut(t)
	require.NoError(t, fx.flow.SignInOrRegister(context.Background(), "new@example.com", "secret1"))
	require.Equal(t, StepProfile, fx.flow.Step())

	err := fx.flow.ResetPassword(context.Background(), "new@example.com")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.False(t, fx.flow.View(false).Submitting)
	assert.Zero(t, fx.provider.count("reset"))

	require.NoError(t, fx.flow.CompleteProfile(context.Background(), domain.ProfileForm{
		FullName: "Nuevo Alumno",
		WhatsApp: "987654321",
	}))
}

func TestFlow_SubmittingWinsOverStepCheck(t *testing.T) {
	fx := newFlowFixture(t)
	fx.settleSignedOut(t)
	fx.provider.accounts["ana@example.com"] = "pw123456"
	fx.provider.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- fx.flow.SignInOrRegister(context.Background(), "ana@example.com", "pw123456")
	}()
	require.Eventually(t, func() bool { return fx.flow.View(false).Submitting }, time.Second, time.Millisecond)

	// Any action, whatever step it targets, is refused while one is outstanding.
	assert.ErrorIs(t, fx.flow.SignInFederated(context.Background(), identity.Credential{IDToken: "ana"}), domain.ErrSubmitting)

	close(fx.provider.block)
	require.NoError(t, <-done)
	assert.False(t, fx.flow.View(false).Submitting)
}
