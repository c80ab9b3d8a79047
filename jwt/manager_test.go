package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("quizcore-test-secret-0123456789")

func newHSManager(t *testing.T, now func() time.Time) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		PrivateKey: testSecret,
		Roles:      []string{"taker", "author", "manager"},
		Now:        now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestIssueRoundTrip(t *testing.T) {
	m := newHSManager(t, nil)

	for _, role := range []string{"taker", "author", "manager"} {
		token, err := m.Issue("user-42", role)
		if err != nil {
			t.Fatalf("issue %s: %v", role, err)
		}
		gotRole, err := m.Role(token)
		if err != nil {
			t.Fatalf("role: %v", err)
		}
		if gotRole != role {
			t.Fatalf("expected role %q, got %q", role, gotRole)
		}
		gotUser, err := m.UserID(token)
		if err != nil {
			t.Fatalf("user id: %v", err)
		}
		if gotUser != "user-42" {
			t.Fatalf("expected user-42, got %q", gotUser)
		}
	}
}

func TestIssueUsesTwentyFourHourHorizon(t *testing.T) {
	fixed := time.Now().Truncate(time.Second)
	m := newHSManager(t, func() time.Time { return fixed })

	token, err := m.Issue("u", "taker")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time); got != 24*time.Hour {
		t.Fatalf("expected 24h horizon, got %s", got)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
}

func TestIssueRejectsMissingArguments(t *testing.T) {
	m := newHSManager(t, nil)

	if _, err := m.Issue("", "taker"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty user, got %v", err)
	}
	if _, err := m.Issue("u", ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty role, got %v", err)
	}
	if _, err := m.Issue("u", "admin"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for unknown role, got %v", err)
	}
}

func TestValidateDistinguishesExpiredFromInvalid(t *testing.T) {
	past := newHSManager(t, func() time.Time { return time.Now().Add(-25 * time.Hour) })
	m := newHSManager(t, nil)

	expired, err := past.Issue("u", "taker")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := m.Validate(expired); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if errors.Is(m.Validate(expired), ErrTokenInvalid) {
		t.Fatal("expired token must not also be reported invalid")
	}
	if _, err := m.Role(expired); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Role: expected ErrTokenExpired, got %v", err)
	}
	if _, err := m.UserID(expired); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("UserID: expected ErrTokenExpired, got %v", err)
	}

	valid, err := m.Issue("u", "taker")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	pos := len(valid) - 10
	swap := byte('A')
	if valid[pos] == 'A' {
		swap = 'Q'
	}
	tampered := valid[:pos] + string(swap) + valid[pos+1:]
	if err := m.Validate(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for tampered token, got %v", err)
	}
	if err := m.Validate("garbage"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for garbage, got %v", err)
	}
}

func TestValidateRejectsForeignSecretAndAlgorithm(t *testing.T) {
	m := newHSManager(t, nil)
	other, err := NewManager(Config{PrivateKey: []byte("another-secret-another-secret"), Roles: []string{"taker"}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	foreign, err := other.Issue("u", "taker")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := m.Validate(foreign); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected foreign secret to be invalid, got %v", err)
	}

	claims := Claims{UserID: "u", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "taker",
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	unsigned, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if err := m.Validate(unsigned); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected alg=none to be invalid, got %v", err)
	}
}

func TestValidateRejectsUnknownRoleClaim(t *testing.T) {
	m := newHSManager(t, nil)
	claims := Claims{UserID: "u", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "root",
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := m.Validate(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected unknown role to be invalid, got %v", err)
	}
}

func TestEd25519SigningRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "quizcore",
		Roles:         []string{"taker"},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, err := m.Issue("u-ed", "taker")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if got, err := m.UserID(token); err != nil || got != "u-ed" {
		t.Fatalf("expected u-ed, got %q (%v)", got, err)
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{name: "missing secret", cfg: Config{Roles: []string{"taker"}}},
		{name: "missing roles", cfg: Config{PrivateKey: testSecret}},
		{name: "negative ttl", cfg: Config{PrivateKey: testSecret, Roles: []string{"taker"}, AccessTTL: -time.Second}},
		{name: "huge leeway", cfg: Config{PrivateKey: testSecret, Roles: []string{"taker"}, Leeway: time.Hour}},
		{name: "unknown method", cfg: Config{PrivateKey: testSecret, Roles: []string{"taker"}, SigningMethod: "rs256"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewManager(tc.cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}
