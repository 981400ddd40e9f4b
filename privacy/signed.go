package privacy

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/syssam/strata"
)

// Identity is the instance a signed identifier was minted for. Relation
// is the qualified name of the relation whose range offered the instance,
// empty for identifiers handed out by list and refresh operations.
type Identity struct {
	Entity   string
	ID       uuid.UUID
	Relation string
	Version  int
}

type identityClaims struct {
	Entity   string `json:"ent"`
	Relation string `json:"rel,omitempty"`
	Version  int    `json:"ver"`
	jwt.RegisteredClaims
}

// Signer mints and verifies signed identifiers (HS256 JSON web tokens).
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithTTL sets the lifetime of minted identifiers. Zero means they do not
// expire.
func WithTTL(d time.Duration) SignerOption {
	return func(s *Signer) { s.ttl = d }
}

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) { s.now = now }
}

// NewSigner returns a signer using the given HMAC key.
func NewSigner(key []byte, opts ...SignerOption) (*Signer, error) {
	if len(key) == 0 {
		return nil, errors.New("privacy: empty signing key")
	}
	s := &Signer{key: key, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sign returns the signed identifier of id.
func (s *Signer) Sign(id Identity) (string, error) {
	now := s.now()
	c := identityClaims{
		Entity:   id.Entity,
		Relation: id.Relation,
		Version:  id.Version,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  id.ID.String(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("privacy: sign identifier: %w", err)
	}
	return token, nil
}

// Verify checks the signature of a signed identifier and returns the
// identity it carries. Tampered, expired or malformed identifiers are
// reported as INVALID_SIGNED_IDENTIFIER.
func (s *Signer) Verify(token string) (Identity, error) {
	var c identityClaims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, invalidIdentifier(err.Error())
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return Identity{}, invalidIdentifier("malformed subject")
	}
	return Identity{Entity: c.Entity, ID: id, Relation: c.Relation, Version: c.Version}, nil
}

func invalidIdentifier(msg string) *strata.AuthorizationError {
	return strata.NewAuthorizationError(strata.CodeInvalidSignedIdentifier, "", msg)
}
