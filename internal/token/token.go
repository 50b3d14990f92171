// Package token signs and verifies the compact identity assertions the
// auth endpoints hand out. Verification is stateless: the claims are
// re-derived from the signature, never looked up.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sheetdrop/apiserver/types"
)

var (
	// ErrInvalidToken is returned for any token that fails verification:
	// bad signature, expired, unknown key id, or missing subject.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the assertions embedded in an issued token.
type Claims struct {
	jwt.RegisteredClaims
	Role types.Role `json:"role"`
}

// Issuer mints and verifies HS256 tokens against a versioned key ring.
// The ring is explicit construction-time configuration; rotating means
// adding a key under a new id and switching the active id, while tokens
// signed with older ring keys keep verifying until they expire.
type Issuer struct {
	keys      map[string][]byte
	activeKID string
	ttl       time.Duration
}

// NewIssuer constructs an Issuer. activeKID must name a key in keys.
func NewIssuer(keys map[string]string, activeKID string, ttl time.Duration) (*Issuer, error) {
	if len(keys) == 0 {
		return nil, errors.New("token: at least one signing key is required")
	}
	if _, ok := keys[activeKID]; !ok {
		return nil, fmt.Errorf("token: active key id %q is not in the key ring", activeKID)
	}
	ring := make(map[string][]byte, len(keys))
	for kid, secret := range keys {
		if secret == "" {
			return nil, fmt.Errorf("token: empty secret for key id %q", kid)
		}
		ring[kid] = []byte(secret)
	}
	return &Issuer{keys: ring, activeKID: activeKID, ttl: ttl}, nil
}

// Issue signs a token asserting the user's identity and role with the
// active key. The key id travels in the token header.
func (i *Issuer) Issue(userID int, role types.Role) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Role: role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = i.activeKID
	return token.SignedString(i.keys[i.activeKID])
}

// Verify checks the signature and expiry and returns the user id and role
// the token asserts. Verifying the same unexpired token repeatedly yields
// the same result; there are no side effects.
func (i *Issuer) Verify(tokenString string) (int, types.Role, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.keyFor(t)
	})
	if err != nil || !token.Valid {
		return 0, "", ErrInvalidToken
	}

	userID, err := strconv.Atoi(claims.Subject)
	if err != nil || userID < 1 {
		return 0, "", ErrInvalidToken
	}
	return userID, claims.Role, nil
}

// keyFor selects the verification key by the header's kid. Tokens minted
// before the ring existed carry no kid and verify against the active key.
func (i *Issuer) keyFor(t *jwt.Token) ([]byte, error) {
	raw, ok := t.Header["kid"]
	if !ok {
		return i.keys[i.activeKID], nil
	}
	kid, ok := raw.(string)
	if !ok {
		return nil, errors.New("malformed key id")
	}
	key, ok := i.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return key, nil
}
