package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campusconnect/backend/internal/users"
)

type stubAccounts map[string]users.User

func (s stubAccounts) FindByID(_ context.Context, userID string) (users.User, error) {
	account, ok := s[userID]
	if !ok {
		return users.User{}, users.ErrUserNotFound
	}
	return account, nil
}

func newTestVerifier(t *testing.T, accounts stubAccounts) (*IdentityVerifier, *TokenIssuer) {
	t.Helper()
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("verifier-secret"),
		Issuer:        "campus-auth",
		Audience:      "campus-api",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("unexpected issuer error: %v", err)
	}
	verifier, err := NewIdentityVerifier(issuer, accounts)
	if err != nil {
		t.Fatalf("unexpected verifier error: %v", err)
	}
	return verifier, issuer
}

func TestIdentityVerifierAcceptsVerifiedAccount(t *testing.T) {
	verifier, issuer := newTestVerifier(t, stubAccounts{
		"student-1": {UserID: "student-1", Username: "alice", Verified: true},
	})
	token, _, err := issuer.IssueToken(context.Background(), "student-1")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	account, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("expected verification success: %v", err)
	}
	if account.Username != "alice" {
		t.Fatalf("unexpected account: %+v", account)
	}
}

func TestIdentityVerifierRejectsRestrictedAccounts(t *testing.T) {
	verifier, issuer := newTestVerifier(t, stubAccounts{
		"unverified": {UserID: "unverified", Username: "u"},
		"banned":     {UserID: "banned", Username: "b", Verified: true, Banned: true},
	})

	testCases := []struct {
		subject    string
		want       error
		restricted bool
	}{
		{subject: "unverified", want: ErrUnverifiedAccount, restricted: true},
		{subject: "banned", want: ErrBannedAccount, restricted: true},
		{subject: "nobody", want: ErrUnknownAccount, restricted: false},
	}
	for _, testCase := range testCases {
		t.Run(testCase.subject, func(t *testing.T) {
			token, _, err := issuer.IssueToken(context.Background(), testCase.subject)
			if err != nil {
				t.Fatalf("issue failed: %v", err)
			}
			_, err = verifier.Verify(context.Background(), token)
			if !errors.Is(err, testCase.want) {
				t.Fatalf("expected %v, got %v", testCase.want, err)
			}
			if IsAccountRestricted(err) != testCase.restricted {
				t.Fatalf("unexpected restriction classification for %v", err)
			}
			if IsAuthenticationFailure(err) == testCase.restricted {
				t.Fatalf("unexpected authentication classification for %v", err)
			}
		})
	}
}

func TestIdentityVerifierRejectsMalformedCredential(t *testing.T) {
	verifier, _ := newTestVerifier(t, stubAccounts{})
	_, err := verifier.Verify(context.Background(), "not-a-jwt")
	if !IsAuthenticationFailure(err) {
		t.Fatalf("expected authentication failure, got %v", err)
	}
}

func TestNewIdentityVerifierRequiresCollaborators(t *testing.T) {
	if _, err := NewIdentityVerifier(nil, stubAccounts{}); err == nil {
		t.Fatalf("expected error for missing token validator")
	}
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("secret"),
		Issuer:        "campus-auth",
		Audience:      "campus-api",
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("unexpected issuer error: %v", err)
	}
	if _, err := NewIdentityVerifier(issuer, nil); err == nil {
		t.Fatalf("expected error for missing account lookup")
	}
}
