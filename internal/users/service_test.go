package users

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"golang.org/x/crypto/bcrypt"

	"github.com/imrishuroy/go-esewa-storefront/internal/dynamotest"
	"github.com/imrishuroy/go-esewa-storefront/internal/events"
	"github.com/imrishuroy/go-esewa-storefront/internal/idempotency"
)

const (
	usersTable  = "users-table"
	claimsTable = "idempotency-table"
)

type recordingPublisher struct {
	mu   sync.Mutex
	sent []events.Envelope
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, env events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, env)
	return nil
}

func (p *recordingPublisher) last(t *testing.T) events.EmailPayload {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sent) == 0 {
		t.Fatalf("no events published")
	}
	email, err := events.Decode[events.EmailPayload](p.sent[len(p.sent)-1])
	if err != nil {
		t.Fatalf("decode email: %v", err)
	}
	return email
}

type fixture struct {
	svc   *Service
	store *Store
	fake  *dynamotest.Fake
	pub   *recordingPublisher
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := dynamotest.New()
	fake.CreateTable(usersTable, "user_id")
	fake.CreateTable(claimsTable, "idempotency_key")
	store := NewStore(fake, usersTable)
	pub := &recordingPublisher{}
	f := &fixture{
		store: store,
		fake:  fake,
		pub:   pub,
		now:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(Config{
		Dynamo:      fake,
		Store:       store,
		Claims:      idempotency.NewStore(fake, claimsTable, 0),
		Hasher:      BcryptHasher{Cost: bcrypt.MinCost},
		Publisher:   pub,
		FrontendURL: "http://shop.test",
		Producer:    "storefront-api",
	})
	f.svc.nowFunc = func() time.Time { return f.now }
	return f
}

func tokenFromLink(t *testing.T, html, marker string) string {
	t.Helper()
	i := strings.Index(html, marker)
	if i < 0 {
		t.Fatalf("link %q not found in %q", marker, html)
	}
	rest := html[i+len(marker):]
	return rest[:strings.Index(rest, `"`)]
}

func register(t *testing.T, f *fixture, username, email, phone string) *User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterInput{
		Username:    username,
		Email:       email,
		PhoneNumber: phone,
		Password:    "s3cret",
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	return u
}

func TestRegisterActivateLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u := register(t, f, "sita", "sita@example.com", "9800000000")
	if u.IsActive || u.Role != RoleUser {
		t.Fatalf("new user should be inactive with role user: %+v", u)
	}
	if u.PasswordHash == "s3cret" || u.PasswordHash == "" {
		t.Fatalf("password must be hashed")
	}
	if len(u.ActivationToken) != 40 {
		t.Fatalf("expected 40 hex chars token, got %q", u.ActivationToken)
	}

	email := f.pub.last(t)
	if email.To != "sita@example.com" || email.Subject != "Account Activation" {
		t.Fatalf("unexpected email: %+v", email)
	}
	token := tokenFromLink(t, email.HTML, "http://shop.test/activate/")
	if token != u.ActivationToken {
		t.Fatalf("email link carries wrong token")
	}

	if _, err := f.svc.Login(ctx, "sita", "s3cret"); !errors.Is(err, ErrInactive) {
		t.Fatalf("expected ErrInactive before activation, got %v", err)
	}

	if err := f.svc.Activate(ctx, token); err != nil {
		t.Fatalf("Activate error: %v", err)
	}
	if err := f.svc.Activate(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token must be single use, got %v", err)
	}

	got, err := f.svc.Login(ctx, "sita", "s3cret")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if got.UserID != u.UserID {
		t.Fatalf("logged in as wrong user")
	}
	if _, err := f.svc.Login(ctx, "sita", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := f.svc.Login(ctx, "ram", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestActivateExpiredToken(t *testing.T) {
	f := newFixture(t)
	u := register(t, f, "sita", "sita@example.com", "")

	f.now = f.now.Add(DefaultTokenTTL + time.Minute)
	if err := f.svc.Activate(context.Background(), u.ActivationToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRegisterDuplicates(t *testing.T) {
	f := newFixture(t)
	register(t, f, "sita", "sita@example.com", "9800000000")

	cases := []RegisterInput{
		{Username: "sita", Email: "other@example.com", Password: "x"},
		{Username: "ram", Email: "sita@example.com", Password: "x"},
		{Username: "hari", Email: "hari@example.com", PhoneNumber: "9800000000", Password: "x"},
	}
	for _, in := range cases {
		if _, err := f.svc.Register(context.Background(), in); !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("%+v: expected ErrAlreadyExists, got %v", in, err)
		}
	}
	if n := f.fake.Len(usersTable); n != 1 {
		t.Fatalf("expected 1 user, got %d", n)
	}
}

func TestRegisterPublishFailure(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("queue down")
	_, err := f.svc.Register(context.Background(), RegisterInput{Username: "sita", Email: "s@example.com", Password: "x"})
	if err == nil {
		t.Fatalf("expected publish failure to fail registration")
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := register(t, f, "sita", "sita@example.com", "")
	if err := f.svc.Activate(ctx, u.ActivationToken); err != nil {
		t.Fatalf("Activate error: %v", err)
	}

	if err := f.svc.ForgotPassword(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := f.svc.ForgotPassword(ctx, "sita@example.com"); err != nil {
		t.Fatalf("ForgotPassword error: %v", err)
	}
	email := f.pub.last(t)
	token := tokenFromLink(t, email.HTML, "http://shop.test/reset-password/")

	if err := f.svc.ResetPassword(ctx, token, ""); !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
	if err := f.svc.ResetPassword(ctx, "bogus", "n3w"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if err := f.svc.ResetPassword(ctx, token, "s3cret"); !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("expected ErrPasswordReused, got %v", err)
	}
	if err := f.svc.ResetPassword(ctx, token, "n3w"); err != nil {
		t.Fatalf("ResetPassword error: %v", err)
	}
	if err := f.svc.ResetPassword(ctx, token, "again"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("reset token must be cleared, got %v", err)
	}
	if _, err := f.svc.Login(ctx, "sita", "n3w"); err != nil {
		t.Fatalf("Login with new password: %v", err)
	}
}

// interleavedDynamo runs before once, ahead of the first UpdateItem it forwards.
type interleavedDynamo struct {
	*dynamotest.Fake
	before func()
}

func (d *interleavedDynamo) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	if d.before != nil {
		d.before()
		d.before = nil
	}
	return d.Fake.UpdateItem(ctx, in, optFns...)
}

func TestResetPasswordKeepsConcurrentRoleChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := register(t, f, "sita", "sita@example.com", "")
	if err := f.svc.Activate(ctx, u.ActivationToken); err != nil {
		t.Fatalf("Activate error: %v", err)
	}
	if err := f.svc.ForgotPassword(ctx, "sita@example.com"); err != nil {
		t.Fatalf("ForgotPassword error: %v", err)
	}
	token := tokenFromLink(t, f.pub.last(t).HTML, "http://shop.test/reset-password/")

	// an admin promotes the user after the reset flow has read the item
	f.svc.store = NewStore(&interleavedDynamo{
		Fake: f.fake,
		before: func() {
			if _, err := f.store.UpdateRole(ctx, u.UserID, RoleAdmin); err != nil {
				t.Errorf("UpdateRole error: %v", err)
			}
		},
	}, usersTable)

	if err := f.svc.ResetPassword(ctx, token, "n3w"); err != nil {
		t.Fatalf("ResetPassword error: %v", err)
	}
	got, err := f.svc.Profile(ctx, u.UserID)
	if err != nil {
		t.Fatalf("Profile error: %v", err)
	}
	if got.Role != RoleAdmin {
		t.Fatalf("role overwritten by password reset: got %q", got.Role)
	}
	if got.ResetToken != "" || got.ResetTokenExpiry != nil {
		t.Fatalf("reset token not consumed: %+v", got)
	}
	if _, err := f.svc.Login(ctx, "sita", "n3w"); err != nil {
		t.Fatalf("Login with new password: %v", err)
	}
}

func TestActivateTwiceWithSameToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := register(t, f, "sita", "sita@example.com", "")

	// the second call races the first: it already resolved the user by token
	f.svc.store = NewStore(&interleavedDynamo{
		Fake: f.fake,
		before: func() {
			if err := f.store.Activate(ctx, u.UserID, u.ActivationToken); err != nil {
				t.Errorf("first Activate error: %v", err)
			}
		},
	}, usersTable)
	if err := f.svc.Activate(ctx, u.ActivationToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for consumed token, got %v", err)
	}
	got, err := f.svc.Profile(ctx, u.UserID)
	if err != nil {
		t.Fatalf("Profile error: %v", err)
	}
	if !got.IsActive || got.ActivationToken != "" {
		t.Fatalf("expected active user without token, got %+v", got)
	}
}

func TestRolesListingAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := register(t, f, "admin", "admin@example.com", "")
	b := register(t, f, "sita", "sita@example.com", "")

	if _, err := f.svc.UpdateRole(ctx, a.UserID, "root"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	updated, err := f.svc.UpdateRole(ctx, a.UserID, RoleAdmin)
	if err != nil {
		t.Fatalf("UpdateRole error: %v", err)
	}
	if updated.Role != RoleAdmin {
		t.Fatalf("role not updated")
	}
	if _, err := f.svc.UpdateRole(ctx, "missing", RoleAdmin); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	admins, _ := f.svc.ListAdmins(ctx)
	users, _ := f.svc.ListNonAdmins(ctx)
	if len(admins) != 1 || admins[0].UserID != a.UserID {
		t.Fatalf("unexpected admins: %+v", admins)
	}
	if len(users) != 1 || users[0].UserID != b.UserID {
		t.Fatalf("unexpected non-admins: %+v", users)
	}

	if err := f.svc.Delete(ctx, b.UserID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := f.svc.Profile(ctx, b.UserID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := f.svc.Delete(ctx, b.UserID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	// released claims let the username be taken again
	register(t, f, "sita", "sita@example.com", "")
}
