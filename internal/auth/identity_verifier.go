package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/campusconnect/backend/internal/users"
)

var (
	ErrMissingToken      = errors.New("auth: token required")
	ErrInvalidToken      = errors.New("auth: invalid token")
	ErrExpiredToken      = errors.New("auth: token expired")
	ErrUnknownAccount    = errors.New("auth: account not found")
	ErrUnverifiedAccount = errors.New("auth: account not verified")
	ErrBannedAccount     = errors.New("auth: account banned")

	errMissingTokenValidator = errors.New("auth: token validator required")
	errMissingAccountLookup  = errors.New("auth: account lookup required")
)

// TokenValidator resolves a bearer credential to its subject.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// AccountLookup loads the account behind a verified subject.
type AccountLookup interface {
	FindByID(ctx context.Context, userID string) (users.User, error)
}

// IdentityVerifier turns a bearer credential into an active account. It is shared by
// the HTTP middleware and the realtime handshake.
type IdentityVerifier struct {
	tokens   TokenValidator
	accounts AccountLookup
}

// NewIdentityVerifier wires a verifier from its collaborators.
func NewIdentityVerifier(tokens TokenValidator, accounts AccountLookup) (*IdentityVerifier, error) {
	if tokens == nil {
		return nil, errMissingTokenValidator
	}
	if accounts == nil {
		return nil, errMissingAccountLookup
	}
	return &IdentityVerifier{tokens: tokens, accounts: accounts}, nil
}

// Verify validates the credential and checks the account may use the platform.
func (v *IdentityVerifier) Verify(ctx context.Context, token string) (users.User, error) {
	subject, err := v.tokens.ValidateToken(token)
	if err != nil {
		return users.User{}, err
	}
	account, err := v.accounts.FindByID(ctx, subject)
	if errors.Is(err, users.ErrUserNotFound) {
		return users.User{}, fmt.Errorf("%w: %s", ErrUnknownAccount, subject)
	}
	if err != nil {
		return users.User{}, err
	}
	if account.Banned {
		return users.User{}, ErrBannedAccount
	}
	if !account.Verified {
		return users.User{}, ErrUnverifiedAccount
	}
	return account, nil
}

// IsAuthenticationFailure reports whether err means the credential itself was rejected.
func IsAuthenticationFailure(err error) bool {
	return errors.Is(err, ErrMissingToken) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrUnknownAccount)
}

// IsAccountRestricted reports whether the credential was valid but the account may not act.
func IsAccountRestricted(err error) bool {
	return errors.Is(err, ErrUnverifiedAccount) || errors.Is(err, ErrBannedAccount)
}
