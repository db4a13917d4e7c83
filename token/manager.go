// Package token issues and verifies the signed bearer tokens of the
// identity core. Verification failures are deliberately uniform: callers
// cannot distinguish an expired token from a forged one.
package token

import (
	"crypto/ed25519"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalid is the single error returned for every verification failure:
// bad signature, malformed structure, wrong class or action, and expiry.
var ErrInvalid = errors.New("invalid token")

// SigningMethod selects the signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// Token classes carried in the "cls" claim.
const (
	ClassAccess  = "access"
	ClassRefresh = "refresh"
	ClassAction  = "action"
)

// Action discriminators carried by action-class tokens. A token issued
// for one action must be rejected when presented for another.
const (
	ActionPasswordSetup = "password_setup"
	ActionPasswordReset = "password_reset"
)

// Config holds signing key material and lifetimes. Loaded once and cached
// for the process lifetime.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ActionTTL     time.Duration
	Leeway        time.Duration
}

// Claims is the wire-visible token payload. Capabilities are present on
// access tokens only; refresh tokens re-derive them at exchange time so
// revoked capabilities take effect without waiting for refresh expiry.
type Claims struct {
	Email        string   `json:"email"`
	Capabilities []string `json:"caps,omitempty"`
	Class        string   `json:"cls"`
	Action       string   `json:"act,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens. Immutable after construction, safe
// for concurrent use.
//
// There is no server-side revocation: a leaked but unexpired token stays
// valid until natural expiry.
type Manager struct {
	config Config
}

// NewManager validates cfg and creates a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.ActionTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// IssueAccess signs a short-lived access token embedding the derived
// capability list.
func (m *Manager) IssueAccess(subjectID, email string, capabilities []string) (string, error) {
	return m.issue(Claims{
		Email:        email,
		Capabilities: capabilities,
		Class:        ClassAccess,
	}, subjectID, m.config.AccessTTL)
}

// IssueRefresh signs a refresh token. Refresh tokens never embed
// capabilities.
func (m *Manager) IssueRefresh(subjectID, email string) (string, error) {
	return m.issue(Claims{
		Email: email,
		Class: ClassRefresh,
	}, subjectID, m.config.RefreshTTL)
}

// IssueAction signs a recovery/setup token bound to the given action.
func (m *Manager) IssueAction(subjectID, email, action string) (string, error) {
	if action != ActionPasswordSetup && action != ActionPasswordReset {
		return "", errors.New("unknown token action")
	}
	return m.issue(Claims{
		Email:  email,
		Class:  ClassAction,
		Action: action,
	}, subjectID, m.config.ActionTTL)
}

// ParseAccess verifies an access-class token.
func (m *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, ClassAccess, "")
}

// ParseRefresh verifies a refresh-class token.
func (m *Manager) ParseRefresh(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, ClassRefresh, "")
}

// ParseAction verifies an action-class token and requires its action
// discriminator to match exactly.
func (m *Manager) ParseAction(tokenStr, action string) (*Claims, error) {
	return m.parse(tokenStr, ClassAction, action)
}

func (m *Manager) issue(claims Claims, subjectID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subjectID,
		ID:        uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    m.config.Issuer,
	}

	token := jwt.NewWithClaims(m.getMethod(), claims)
	signKey, err := m.getSignKey()
	if err != nil {
		return "", err
	}

	return token.SignedString(signKey)
}

func (m *Manager) parse(tokenStr, class, action string) (*Claims, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return nil, ErrInvalid
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.getMethod().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.getVerifyKey()
	})
	if err != nil {
		return nil, ErrInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.Class != class {
		return nil, ErrInvalid
	}
	if class == ClassAction && claims.Action != action {
		return nil, ErrInvalid
	}
	if claims.Subject == "" {
		return nil, ErrInvalid
	}

	return claims, nil
}

func (m *Manager) getMethod() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) getSignKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(m.config.PrivateKey)
	}
}

func (m *Manager) getVerifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		if len(m.config.PublicKey) > 0 {
			return parseEdPublicKey(m.config.PublicKey)
		}
		priv, err := parseEdPrivateKey(m.config.PrivateKey)
		if err != nil {
			return nil, err
		}
		return priv.Public(), nil
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
