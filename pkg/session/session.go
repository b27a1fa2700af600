package session

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuer   = "marketgen"
	defaultAudience = "marketgen-web"
	defaultLeeway   = 30 * time.Second
)

var ErrInvalidSession = errors.New("invalid session")

// Identity is what a verified session says about its holder. OpenID is the
// external login identifier; profile fields are optional.
type Identity struct {
	OpenID      string
	Name        string
	Email       string
	LoginMethod string
	TokenID     string
	ExpiresAt   time.Time
}

type claims struct {
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	LoginMethod string `json:"loginMethod,omitempty"`
	jwt.RegisteredClaims
}

// Options configures token lifetime and claim validation.
type Options struct {
	KeyID    string
	TTL      time.Duration
	Issuer   string
	Audience string
	Leeway   time.Duration
	// VerifyKeys maps kid -> public key PEM path for rotated-out keys.
	VerifyKeys map[string]string
	Revoker    TokenRevoker
}

// Manager issues and verifies RS256 session tokens.
type Manager struct {
	signer    *rsa.PrivateKey
	signerKid string
	verifiers map[string]*rsa.PublicKey
	ttl       time.Duration
	issuer    string
	audience  string
	leeway    time.Duration
	revoker   TokenRevoker
}

// NewManagerFromPEM loads the active signing key (and optional public key and
// rotated verify keys) from PEM files.
func NewManagerFromPEM(privateKeyPath, publicKeyPath string, opts Options) (*Manager, error) {
	privateKey, err := loadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load session private key: %w", err)
	}
	var activePub *rsa.PublicKey
	if strings.TrimSpace(publicKeyPath) != "" {
		activePub, err = loadPublicKey(publicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load session public key: %w", err)
		}
	}
	extra := make(map[string]*rsa.PublicKey, len(opts.VerifyKeys))
	for kid, path := range opts.VerifyKeys {
		kid, path = strings.TrimSpace(kid), strings.TrimSpace(path)
		if kid == "" || path == "" {
			continue
		}
		pub, err := loadPublicKey(path)
		if err != nil {
			return nil, fmt.Errorf("load verify key %q: %w", kid, err)
		}
		extra[kid] = pub
	}
	m := NewManager(privateKey, opts)
	if activePub != nil {
		m.verifiers[m.signerKid] = activePub
	}
	for kid, pub := range extra {
		m.verifiers[kid] = pub
	}
	return m, nil
}

// NewManager builds a manager around an in-memory key.
func NewManager(privateKey *rsa.PrivateKey, opts Options) *Manager {
	kid := strings.TrimSpace(opts.KeyID)
	if kid == "" {
		kid = "session-active"
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 365 * 24 * time.Hour
	}
	issuer := strings.TrimSpace(opts.Issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	audience := strings.TrimSpace(opts.Audience)
	if audience == "" {
		audience = defaultAudience
	}
	leeway := opts.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	return &Manager{
		signer:    privateKey,
		signerKid: kid,
		verifiers: map[string]*rsa.PublicKey{kid: &privateKey.PublicKey},
		ttl:       ttl,
		issuer:    issuer,
		audience:  audience,
		leeway:    leeway,
		revoker:   opts.Revoker,
	}
}

// Issue signs a session token for the identity.
func (m *Manager) Issue(id Identity) (string, error) {
	if strings.TrimSpace(id.OpenID) == "" {
		return "", errors.New("open id required")
	}
	now := time.Now().UTC()
	c := claims{
		Name:        id.Name,
		Email:       id.Email,
		LoginMethod: id.LoginMethod,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.OpenID,
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        randomHexID(12),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
	token.Header["kid"] = m.signerKid
	return token.SignedString(m.signer)
}

// Verify validates signature, claims and revocation, returning the identity.
func (m *Manager) Verify(token string) (Identity, error) {
	c, err := m.parse(token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if m.revoker != nil {
		revoked, err := m.revoker.IsRevoked(c.ID)
		if err != nil {
			return Identity{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return Identity{}, fmt.Errorf("%w: token revoked", ErrInvalidSession)
		}
	}
	id := Identity{
		OpenID:      c.Subject,
		Name:        c.Name,
		Email:       c.Email,
		LoginMethod: c.LoginMethod,
		TokenID:     c.ID,
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id, nil
}

// Revoke invalidates a token until it would have expired. Unparseable tokens
// are ignored since they can never verify anyway.
func (m *Manager) Revoke(token string) error {
	if m.revoker == nil {
		return nil
	}
	c, err := m.parse(token)
	if err != nil || c.ExpiresAt == nil {
		return nil
	}
	return m.revoker.Revoke(c.ID, time.Until(c.ExpiresAt.Time))
}

// TTL is the lifetime of newly issued tokens.
func (m *Manager) TTL() time.Duration { return m.ttl }

func (m *Manager) parse(token string) (claims, error) {
	c := claims{}
	token = strings.TrimSpace(token)
	if token == "" {
		return c, errors.New("empty token")
	}
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		pub, ok := m.verifiers[strings.TrimSpace(kid)]
		if !ok {
			return nil, errors.New("unknown token key")
		}
		return pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(m.leeway),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
	)
	if err != nil {
		return c, err
	}
	if !parsed.Valid {
		return c, errors.New("invalid token")
	}
	if strings.TrimSpace(c.Subject) == "" {
		return c, errors.New("token subject missing")
	}
	if strings.TrimSpace(c.ID) == "" {
		return c, errors.New("token jti missing")
	}
	return c, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not rsa")
	}
	return key, nil
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	if parsed, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		pub, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("public key is not rsa")
		}
		return pub, nil
	}
	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("certificate public key is not rsa")
		}
		return pub, nil
	}
	return nil, errors.New("failed to parse rsa public key")
}

func randomHexID(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
