// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/wagerdeck/sentinel/internal/crypto"
)

const (
	// headerSecretInfo and cookieSecretInfo are the HKDF info strings for
	// the two independent signing secrets.
	headerSecretInfo = "antiforgery-header-v1"
	cookieSecretInfo = "antiforgery-cookie-v1"

	// DefaultTokenTTL is how long an anti-forgery token stays valid.
	DefaultTokenTTL = 4 * time.Hour

	// DefaultMaxIssuePerHour caps token issuance per identity.
	DefaultMaxIssuePerHour = 100

	nonceBytes = 16
)

var (
	// ErrRateLimited is returned when an identity exceeds its hourly
	// issuance allowance.
	ErrRateLimited = errors.New("token issuance rate limit exceeded")

	// ErrMissingSession is returned when issuing without session binding.
	ErrMissingSession = errors.New("session ID is required")
)

// Config holds token service settings.
type Config struct {
	// TTL is the anti-forgery token lifetime.
	TTL time.Duration

	// MaxIssuePerHour caps issuance per identity. Zero means DefaultMaxIssuePerHour.
	MaxIssuePerHour int

	// CapabilityTTL is the default capability token lifetime.
	CapabilityTTL time.Duration
}

// DefaultConfig returns the default token service configuration.
func DefaultConfig() Config {
	return Config{
		TTL:             DefaultTokenTTL,
		MaxIssuePerHour: DefaultMaxIssuePerHour,
		CapabilityTTL:   10 * time.Minute,
	}
}

// Pair is a double-submit token pair. The header token travels in a response
// body or header; the cookie token is set as an HTTP-only cookie. A request
// is accepted only when both validate and agree.
type Pair struct {
	HeaderToken string `json:"headerToken"`
	CookieToken string `json:"cookieToken"`
}

// payload is the signed content of an anti-forgery token.
type payload struct {
	SessionID string `json:"sid"`
	ActorID   string `json:"act"`
	IssuedAt  int64  `json:"iat"`
	Nonce     string `json:"nce"`
}

// Service issues and validates signed tokens. Safe for concurrent use.
type Service struct {
	cfg          Config
	headerSecret []byte
	cookieSecret []byte
	capSecret    []byte
	limiter      *issueLimiter

	now func() time.Time
}

// NewService creates a token Service with secrets derived from the crypto
// service's master secret.
func NewService(cryptoSvc *crypto.Service, cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if cfg.MaxIssuePerHour <= 0 {
		cfg.MaxIssuePerHour = DefaultMaxIssuePerHour
	}
	if cfg.CapabilityTTL <= 0 {
		cfg.CapabilityTTL = 10 * time.Minute
	}

	return &Service{
		cfg:          cfg,
		headerSecret: cryptoSvc.SubkeyFor(headerSecretInfo),
		cookieSecret: cryptoSvc.SubkeyFor(cookieSecretInfo),
		capSecret:    cryptoSvc.SubkeyFor(capabilitySecretInfo),
		limiter:      newIssueLimiter(cfg.MaxIssuePerHour),
		now:          time.Now,
	}
}

// Issue creates a session-bound anti-forgery token for the header channel.
// An empty actor leaves the token bound to the session alone. Issuance
// counts against the identity's hourly allowance.
func (s *Service) Issue(sessionID, actorID string) (string, error) {
	if sessionID == "" {
		return "", ErrMissingSession
	}
	if !s.limiter.allow(issueIdentity(sessionID, actorID), s.now()) {
		return "", ErrRateLimited
	}

	nonce, err := crypto.RandomToken(nonceBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.sign(s.headerSecret, sessionID, actorID, nonce)
}

// IssuePair creates a double-submit pair sharing one nonce but signed with
// independent secrets.
func (s *Service) IssuePair(sessionID, actorID string) (*Pair, error) {
	if sessionID == "" {
		return nil, ErrMissingSession
	}
	if !s.limiter.allow(issueIdentity(sessionID, actorID), s.now()) {
		return nil, ErrRateLimited
	}

	nonce, err := crypto.RandomToken(nonceBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	header, err := s.sign(s.headerSecret, sessionID, actorID, nonce)
	if err != nil {
		return nil, err
	}
	cookie, err := s.sign(s.cookieSecret, sessionID, actorID, nonce)
	if err != nil {
		return nil, err
	}

	return &Pair{HeaderToken: header, CookieToken: cookie}, nil
}

// Validate reports whether a header-channel token is valid for the given
// session and actor. All failure modes return plain false.
func (s *Service) Validate(token, sessionID, actorID string) bool {
	_, ok := s.verify(s.headerSecret, token, sessionID, actorID)
	return ok
}

// ValidatePair reports whether a double-submit pair is valid: both tokens
// must verify under their own secrets and carry the same nonce.
func (s *Service) ValidatePair(headerToken, cookieToken, sessionID, actorID string) bool {
	hp, ok := s.verify(s.headerSecret, headerToken, sessionID, actorID)
	if !ok {
		return false
	}
	cp, ok := s.verify(s.cookieSecret, cookieToken, sessionID, actorID)
	if !ok {
		return false
	}
	return crypto.ConstantTimeEquals(hp.Nonce, cp.Nonce)
}

// sign builds base64url(payload) + "." + signature.
func (s *Service) sign(secret []byte, sessionID, actorID, nonce string) (string, error) {
	p := payload{
		SessionID: sessionID,
		ActorID:   actorID,
		IssuedAt:  s.now().Unix(),
		Nonce:     nonce,
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token payload: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(raw)
	sig := crypto.HMACSign(secret, []byte(encoded))
	return encoded + "." + sig, nil
}

// issueIdentity keys the issuance limiter: per actor when one is bound,
// per session for anonymous sessions.
func issueIdentity(sessionID, actorID string) string {
	if actorID != "" {
		return actorID
	}
	return sessionID
}

// verify parses and checks a token. Returns the payload only on full success.
// The actor comparison always runs, so an actor-bound token never validates
// without its actor and an unbound token never validates with one.
func (s *Service) verify(secret []byte, token, sessionID, actorID string) (*payload, bool) {
	if token == "" || sessionID == "" {
		return nil, false
	}

	dot := -1
	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			dot = i
			break
		}
	}
	if dot <= 0 || dot == len(token)-1 {
		return nil, false
	}

	encoded, sig := token[:dot], token[dot+1:]
	if !crypto.HMACVerify(secret, []byte(encoded), sig) {
		return nil, false
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}

	if s.now().Sub(time.Unix(p.IssuedAt, 0)) > s.cfg.TTL {
		return nil, false
	}
	if !crypto.ConstantTimeEquals(p.SessionID, sessionID) {
		return nil, false
	}
	if !crypto.ConstantTimeEquals(p.ActorID, actorID) {
		return nil, false
	}
	return &p, true
}
