package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	totpSecretBytes  = 20 // 160 bits, RFC 4226 recommended minimum
	backupCodeBytes  = 4  // 8 hex characters
	resetSecretBytes = 32
)

// NewTokenID returns the random token ID that binds a refresh JWT to its
// session record.
func NewTokenID() string {
	return uuid.NewString()
}

// NewSessionID returns an opaque session correlation ID.
func NewSessionID() string {
	return uuid.NewString()
}

// NewTOTPSecret returns a fresh TOTP secret as raw bytes and base32
// without padding.
func NewTOTPSecret() ([]byte, string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return raw, enc.EncodeToString(raw), nil
}

// NewBackupCode returns one 8-hex-character backup code, uppercase. The
// length is deliberately distinct from TOTP's 6 digits so the two are
// unambiguous by shape alone.
func NewBackupCode() (string, error) {
	raw := make([]byte, backupCodeBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(raw)), nil
}

// CanonicalizeBackupCode normalizes user input for comparison: trimmed,
// uppercase, separators removed.
func CanonicalizeBackupCode(code string) string {
	code = strings.TrimSpace(code)
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	return strings.ToUpper(code)
}

// IsBackupCodeShape reports whether a canonicalized code looks like a
// backup code rather than a TOTP code.
func IsBackupCodeShape(code string) bool {
	if len(code) != 2*backupCodeBytes {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// BackupCodeHash derives the storage key for a backup code. Codes are
// salted with the user ID so equal codes of different users never share a
// key, and plaintext is never persisted.
func BackupCodeHash(userID, canonicalCode string) string {
	sum := sha256.Sum256([]byte(userID + ":" + canonicalCode))
	return hex.EncodeToString(sum[:])
}

// NewResetSecret returns the random secret half of a password-reset
// challenge.
func NewResetSecret() ([]byte, error) {
	secret := make([]byte, resetSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// HashResetSecret derives the stored digest of a reset secret.
func HashResetSecret(secret []byte) string {
	sum := sha256.Sum256(secret)
	return hex.EncodeToString(sum[:])
}

// EncodeResetToken packs a challenge ID and secret into one opaque
// base64url token.
func EncodeResetToken(id uuid.UUID, secret []byte) (string, error) {
	if len(secret) != resetSecretBytes {
		return "", errors.New("invalid reset secret size")
	}
	raw := make([]byte, 0, len(id)+resetSecretBytes)
	raw = append(raw, id[:]...)
	raw = append(raw, secret...)
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeResetToken is the inverse of EncodeResetToken.
func DecodeResetToken(token string) (uuid.UUID, []byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return uuid.UUID{}, nil, err
	}
	if len(raw) != 16+resetSecretBytes {
		return uuid.UUID{}, nil, errors.New("invalid reset token size")
	}
	var id uuid.UUID
	copy(id[:], raw[:16])
	return id, raw[16:], nil
}
