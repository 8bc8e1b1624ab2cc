package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	totpSecretBytes = 20
	totpDigits      = 6
	totpPeriod      = 30
	totpSkew        = 1
)

// SecondFactor validates time-based one-time codes for accounts that opted in.
// Stored secrets are encrypted at rest with a key derived from the signing
// secret; a secret that fails to decrypt is a configuration error, never
// silently treated as "2FA disabled".
type SecondFactor struct {
	encKey []byte
	issuer string
	now    func() time.Time
}

// NewSecondFactor derives the at-rest encryption key from the auth secret.
func NewSecondFactor(authSecret []byte, opts ...SecondFactorOption) *SecondFactor {
	s := &SecondFactor{
		encKey: deriveSecret(authSecret, "totp-encryption"),
		issuer: "Veloeats",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SecondFactorOption configures SecondFactor.
type SecondFactorOption func(*SecondFactor)

// WithSecondFactorClock overrides the time source (useful for tests).
func WithSecondFactorClock(fn func() time.Time) SecondFactorOption {
	return func(s *SecondFactor) {
		if fn != nil {
			s.now = fn
		}
	}
}

// GenerateSecret returns a fresh raw secret and its base32 form for enrollment.
func (s *SecondFactor) GenerateSecret() ([]byte, string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return raw, enc.EncodeToString(raw), nil
}

// ProvisionURI builds the otpauth enrollment URI for authenticator apps.
func (s *SecondFactor) ProvisionURI(secretBase32, account string) string {
	label := url.PathEscape(s.issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", s.issuer)
	v.Set("period", strconv.Itoa(totpPeriod))
	v.Set("digits", strconv.Itoa(totpDigits))
	v.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// EncryptSecret seals a raw TOTP secret for storage.
func (s *SecondFactor) EncryptSecret(raw []byte) ([]byte, error) {
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, raw, nil), nil
}

// Verify checks a submitted code against the encrypted stored secret within
// the allowed step skew, using a constant-time comparison.
func (s *SecondFactor) Verify(encryptedSecret []byte, code string) (bool, error) {
	secret, err := s.decryptSecret(encryptedSecret)
	if err != nil {
		return false, &ConfigurationError{Reason: "two-factor secret cannot be decrypted"}
	}

	trimmed := strings.TrimSpace(code)
	if len(trimmed) != totpDigits || !isNumeric(trimmed) {
		return false, nil
	}

	baseCounter := s.now().Unix() / totpPeriod
	for step := -totpSkew; step <= totpSkew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated := hotpCode(secret, counter, totpDigits)
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

func (s *SecondFactor) decryptSecret(sealed []byte) ([]byte, error) {
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("sealed secret too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func (s *SecondFactor) aead() (cipher.AEAD, error) {
	sum := sha256.Sum256(s.encKey)
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func hotpCode(secret []byte, counter int64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod)
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
