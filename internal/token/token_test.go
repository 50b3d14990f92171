package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sheetdrop/apiserver/types"
)

func newTestIssuer(t *testing.T, ttl time.Duration) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(map[string]string{
		"v1": "secret-one",
		"v2": "secret-two",
	}, "v2", ttl)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return issuer
}

func TestIssueVerifyRoundtrip(t *testing.T) {
	issuer := newTestIssuer(t, time.Hour)

	signed, err := issuer.Issue(42, types.RoleAdmin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	userID, role, err := issuer.Verify(signed)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if userID != 42 {
		t.Errorf("userID = %d, want 42", userID)
	}
	if role != types.RoleAdmin {
		t.Errorf("role = %q, want admin", role)
	}
}

func TestVerifyIsRepeatable(t *testing.T) {
	issuer := newTestIssuer(t, time.Hour)

	signed, err := issuer.Issue(7, types.RoleUser)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	for i := 0; i < 3; i++ {
		userID, role, err := issuer.Verify(signed)
		if err != nil {
			t.Fatalf("Verify #%d: %v", i+1, err)
		}
		if userID != 7 || role != types.RoleUser {
			t.Fatalf("Verify #%d = (%d, %q), want (7, user)", i+1, userID, role)
		}
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	issuer := newTestIssuer(t, time.Hour)
	foreign, err := NewIssuer(map[string]string{"v2": "another-secret"}, "v2", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	signed, err := foreign.Issue(1, types.RoleUser)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, _, err := issuer.Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify of foreign-signed token: err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	issuer := newTestIssuer(t, -time.Minute)

	signed, err := issuer.Issue(1, types.RoleUser)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, _, err := issuer.Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify of expired token: err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsUnknownKeyID(t *testing.T) {
	issuer := newTestIssuer(t, time.Hour)
	other, err := NewIssuer(map[string]string{"v9": "secret-two"}, "v9", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	signed, err := other.Issue(1, types.RoleUser)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, _, err := issuer.Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify with unknown kid: err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRotatedKeyStillValid(t *testing.T) {
	old, err := NewIssuer(map[string]string{"v1": "secret-one"}, "v1", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	signed, err := old.Issue(3, types.RoleUser)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// The ring has rotated to v2 but still holds v1.
	rotated := newTestIssuer(t, time.Hour)
	userID, _, err := rotated.Verify(signed)
	if err != nil {
		t.Fatalf("Verify after rotation: %v", err)
	}
	if userID != 3 {
		t.Errorf("userID = %d, want 3", userID)
	}
}

func TestVerifyNoKIDFallsBackToActiveKey(t *testing.T) {
	issuer := newTestIssuer(t, time.Hour)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "5",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: types.RoleUser,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret-two"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	userID, _, err := issuer.Verify(signed)
	if err != nil {
		t.Fatalf("Verify without kid: %v", err)
	}
	if userID != 5 {
		t.Errorf("userID = %d, want 5", userID)
	}
}

func TestNewIssuerValidation(t *testing.T) {
	if _, err := NewIssuer(nil, "v1", time.Hour); err == nil {
		t.Error("expected error for empty key ring")
	}
	if _, err := NewIssuer(map[string]string{"v1": "s"}, "v2", time.Hour); err == nil {
		t.Error("expected error for active kid outside the ring")
	}
	if _, err := NewIssuer(map[string]string{"v1": ""}, "v1", time.Hour); err == nil {
		t.Error("expected error for empty secret")
	}
}
