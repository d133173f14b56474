package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-esewa-storefront/internal/aws"
	"github.com/imrishuroy/go-esewa-storefront/internal/events"
	"github.com/imrishuroy/go-esewa-storefront/internal/idempotency"
	"github.com/imrishuroy/go-esewa-storefront/internal/logging"
	"github.com/imrishuroy/go-esewa-storefront/internal/txn"
)

// DefaultTokenTTL is how long activation and reset links stay valid.
const DefaultTokenTTL = time.Hour

// Config wires a Service.
type Config struct {
	Dynamo      aws.DynamoDBAPI
	Store       *Store
	Claims      *idempotency.Store
	Hasher      Hasher
	Publisher   events.Publisher
	FrontendURL string
	TokenTTL    time.Duration
	Producer    string
}

// Service implements the account flows.
type Service struct {
	dynamo      aws.DynamoDBAPI
	store       *Store
	claims      *idempotency.Store
	hasher      Hasher
	publisher   events.Publisher
	frontendURL string
	tokenTTL    time.Duration
	producer    string
	nowFunc     func() time.Time
}

func NewService(cfg Config) *Service {
	if cfg.Hasher == nil {
		cfg.Hasher = BcryptHasher{}
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.Discard{}
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	return &Service{
		dynamo:      cfg.Dynamo,
		store:       cfg.Store,
		claims:      cfg.Claims,
		hasher:      cfg.Hasher,
		publisher:   cfg.Publisher,
		frontendURL: cfg.FrontendURL,
		tokenTTL:    cfg.TokenTTL,
		producer:    cfg.Producer,
		nowFunc:     time.Now,
	}
}

// RegisterInput is a new account.
type RegisterInput struct {
	Username    string
	PhoneNumber string
	Address     string
	Email       string
	Password    string
}

// Register creates an inactive user and queues the activation email.
// Username, email and phone are claimed in the same transaction as the user.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if in.Password == "" {
		return nil, ErrPasswordRequired
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now := s.nowFunc().UTC()
	expiry := now.Add(s.tokenTTL)

	u := &User{
		UserID:                uuid.NewString(),
		Username:              in.Username,
		PhoneNumber:           in.PhoneNumber,
		Address:               in.Address,
		Email:                 in.Email,
		PasswordHash:          hash,
		Role:                  RoleUser,
		ActivationToken:       token,
		ActivationTokenExpiry: &expiry,
		IsActive:              false,
		CreatedAt:             now,
	}

	var b txn.Batch
	put, err := s.store.TransactPut(u)
	if err != nil {
		return nil, err
	}
	b.Add("user", put)
	for _, k := range accountKeys(u) {
		claim, err := s.claims.TransactClaim(k, u.UserID)
		if err != nil {
			return nil, err
		}
		b.Add("claim:"+k, claim)
	}
	if err := b.Commit(ctx, s.dynamo); err != nil {
		var canceled *txn.CanceledError
		if errors.As(err, &canceled) {
			if _, ok := canceled.FailedCondition("claim:"); ok {
				return nil, ErrAlreadyExists
			}
		}
		return nil, fmt.Errorf("register user: %w", err)
	}

	link := fmt.Sprintf("%s/activate/%s", s.frontendURL, token)
	err = s.sendEmail(ctx, events.TypeAccountActivation, events.EmailPayload{
		To:      u.Email,
		Subject: "Account Activation",
		HTML:    fmt.Sprintf(`Please activate your account by clicking the following link: <a href="%s">Activate Account</a>`, link),
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Activate marks the account holding token as active.
func (s *Service) Activate(ctx context.Context, token string) error {
	u, err := s.store.FindByActivationToken(ctx, token)
	if err != nil {
		return err
	}
	if u == nil || !s.live(u.ActivationTokenExpiry) {
		return ErrInvalidToken
	}
	if err := s.store.Activate(ctx, u.UserID, token); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	return nil
}

// Login checks credentials and returns the user.
func (s *Service) Login(ctx context.Context, username, password string) (*User, error) {
	u, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrInactive
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// ForgotPassword issues a reset token and queues the reset email.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrNotFound
	}
	token, err := newToken()
	if err != nil {
		return err
	}
	expiry := s.nowFunc().UTC().Add(s.tokenTTL)
	if err := s.store.SetResetToken(ctx, u.UserID, token, expiry); err != nil {
		return err
	}

	link := fmt.Sprintf("%s/reset-password/%s", s.frontendURL, token)
	return s.sendEmail(ctx, events.TypePasswordReset, events.EmailPayload{
		To:      u.Email,
		Subject: "Password Reset Request",
		HTML:    fmt.Sprintf(`You requested a password reset. Click the following link to reset your password: <a href="%s">Reset Link</a>`, link),
	})
}

// ResetPassword replaces the password of the account holding token.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return ErrPasswordRequired
	}
	u, err := s.store.FindByResetToken(ctx, token)
	if err != nil {
		return err
	}
	if u == nil || !s.live(u.ResetTokenExpiry) {
		return ErrInvalidToken
	}
	if s.hasher.Verify(u.PasswordHash, newPassword) {
		return ErrPasswordReused
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.ResetPassword(ctx, u.UserID, token, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	return nil
}

func (s *Service) Profile(ctx context.Context, userID string) (*User, error) {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

func (s *Service) ListNonAdmins(ctx context.Context) ([]User, error) {
	return s.store.ListByRole(ctx, RoleAdmin, true)
}

func (s *Service) ListAdmins(ctx context.Context) ([]User, error) {
	return s.store.ListByRole(ctx, RoleAdmin, false)
}

func (s *Service) UpdateRole(ctx context.Context, userID, role string) (*User, error) {
	if !ValidRole(role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return s.store.UpdateRole(ctx, userID, role)
}

// Delete removes the user and releases their username, email and phone.
func (s *Service) Delete(ctx context.Context, userID string) error {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrNotFound
	}
	var b txn.Batch
	b.Add("user", s.store.TransactDelete(userID))
	for _, k := range accountKeys(u) {
		b.Add("claim:"+k, s.claims.TransactRelease(k))
	}
	if err := b.Commit(ctx, s.dynamo); err != nil {
		var canceled *txn.CanceledError
		if errors.As(err, &canceled) && !canceled.Conflict() {
			return ErrNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *Service) live(expiry *time.Time) bool {
	return expiry != nil && expiry.After(s.nowFunc())
}

func (s *Service) sendEmail(ctx context.Context, eventType string, p events.EmailPayload) error {
	env, err := events.New(eventType, s.producer, logging.RequestID(ctx), p)
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, env); err != nil {
		logging.FromContext(ctx).Error("queue account email failed",
			zap.String("event_type", eventType), zap.Error(err))
		return fmt.Errorf("queue %s email: %w", eventType, err)
	}
	return nil
}

func accountKeys(u *User) []string {
	keys := []string{
		idempotency.AccountKey("username", u.Username),
		idempotency.AccountKey("email", u.Email),
	}
	if u.PhoneNumber != "" {
		keys = append(keys, idempotency.AccountKey("phone", u.PhoneNumber))
	}
	return keys
}
