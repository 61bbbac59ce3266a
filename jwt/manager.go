// Package jwt is the token codec: it signs and verifies the compact
// claims-bearing access and refresh tokens with independent HS256 secrets.
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway is the clock-skew grace window applied during claims
// validation. Expiry is enforced by the library validator with this leeway,
// never by ad hoc comparisons at call sites.
const DefaultLeeway = 30 * time.Second

var (
	// ErrTokenExpired is returned for tokens past their expiry (beyond
	// leeway).
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed is returned for tokens that do not parse.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrBadSignature is returned for tokens whose signature does not
	// verify, including tokens signed with the other key class.
	ErrBadSignature = errors.New("token signature invalid")
	// ErrClaimsInvalid is returned for issuer/audience mismatches and
	// other claim failures.
	ErrClaimsInvalid = errors.New("token claims invalid")
)

// Config defines the codec parameters. AccessSecret and RefreshSecret must
// differ; a token of one class never verifies as the other.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	// Leeway defaults to DefaultLeeway when zero.
	Leeway time.Duration
	// TimeFunc overrides the validation clock. Tests use it; production
	// leaves it nil.
	TimeFunc func() time.Time
}

// AccessClaims is the access-token claim set. Subject carries the user ID.
type AccessClaims struct {
	Email     string `json:"eml"`
	Role      string `json:"rol"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is the refresh-token claim set. Subject carries the user
// ID and ID (jti) the random token ID binding the JWT to its Redis record.
type RefreshClaims struct {
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies both token classes.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a ready Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("both signing secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("issuer and audience are required")
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = DefaultLeeway
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

func (m *Manager) now() time.Time {
	if m.config.TimeFunc != nil {
		return m.config.TimeFunc()
	}
	return time.Now()
}

// IssueAccess signs a new access token for the given identity.
func (m *Manager) IssueAccess(userID, email, role, sessionID string) (string, error) {
	now := m.now()
	claims := AccessClaims{
		Email:     email,
		Role:      role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.AccessSecret)
}

// IssueRefresh signs a new refresh token bound to tokenID.
func (m *Manager) IssueRefresh(userID, tokenID, sessionID string) (string, error) {
	now := m.now()
	claims := RefreshClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   userID,
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.RefreshTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.RefreshSecret)
}

// VerifyAccess parses and validates an access token.
func (m *Manager) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.verify(tokenStr, claims, m.config.AccessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh parses and validates a refresh token. The caller still has
// to check the backing session record; a valid signature alone grants
// nothing.
func (m *Manager) VerifyRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.verify(tokenStr, claims, m.config.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, ErrClaimsInvalid
	}
	return claims, nil
}

func (m *Manager) verify(tokenStr string, claims jwt.Claims, secret []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(m.config.Leeway),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.config.TimeFunc != nil {
		options = append(options, jwt.WithTimeFunc(m.config.TimeFunc))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return mapParseError(err)
	}
	if !token.Valid {
		return ErrClaimsInvalid
	}
	return nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	default:
		return ErrClaimsInvalid
	}
}
