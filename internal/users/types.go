package users

import (
	"errors"
	"time"
)

// Roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// GSIs on the users table.
const (
	UsernameIndex        = "username-index"
	EmailIndex           = "email-index"
	PhoneIndex           = "phone_number-index"
	ActivationTokenIndex = "activation_token-index"
	ResetTokenIndex      = "reset_token-index"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrAlreadyExists      = errors.New("username, email or phone number already exists")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInactive           = errors.New("account is not active")
	ErrPasswordRequired   = errors.New("new password is required")
	ErrPasswordReused     = errors.New("new password must differ from the old password")
	ErrInvalidRole        = errors.New("invalid role")
)

func ValidRole(r string) bool { return r == RoleUser || r == RoleAdmin }

// User is an item in the users table. Secrets never leave the service as JSON.
type User struct {
	UserID                string     `dynamodbav:"user_id" json:"id"`
	Username              string     `dynamodbav:"username" json:"username"`
	PhoneNumber           string     `dynamodbav:"phone_number,omitempty" json:"phonenumber"`
	Address               string     `dynamodbav:"address,omitempty" json:"address"`
	Email                 string     `dynamodbav:"email" json:"email"`
	PasswordHash          string     `dynamodbav:"password_hash" json:"-"`
	Role                  string     `dynamodbav:"role" json:"role"`
	ActivationToken       string     `dynamodbav:"activation_token,omitempty" json:"-"`
	ActivationTokenExpiry *time.Time `dynamodbav:"activation_token_expiry,omitempty" json:"-"`
	ResetToken            string     `dynamodbav:"reset_token,omitempty" json:"-"`
	ResetTokenExpiry      *time.Time `dynamodbav:"reset_token_expiry,omitempty" json:"-"`
	IsActive              bool       `dynamodbav:"is_active" json:"isActive"`
	CreatedAt             time.Time  `dynamodbav:"created_at" json:"createdAt"`
}
