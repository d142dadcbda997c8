// Package session issues, reads and clears the stateless session
// cookie. The cookie value is the whole session, sealed with an AEAD
// so it cannot be read or altered by the browser. Nothing is stored
// server-side: a sealed cookie stays valid until it expires or the
// secret is rotated.
package session

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	errs "github.com/alexjbarnes/slack-signin/internal/errors"
	"github.com/alexjbarnes/slack-signin/internal/models"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// keyInfo is the HKDF context string for cookie keys.
const keyInfo = "slack-signin session cookie v1"

// Codec seals and opens session payloads.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec derives an XChaCha20-Poly1305 key from secret with
// HKDF-SHA256.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("session secret is empty")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("deriving session key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating session cipher: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// Seal encodes s as nonce||ciphertext in unpadded base64url.
func (c *Codec) Seal(s *models.Session) (string, error) {
	plaintext, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshalling session: %w", err)
	}

	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, []byte(CookieName))

	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Any decoding, authentication or JSON failure is
// reported as ErrInvalidSession.
func (c *Codec) Open(value string) (*models.Session, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decoding session: %w", errs.ErrInvalidSession)
	}

	if len(sealed) < c.aead.NonceSize()+c.aead.Overhead() {
		return nil, fmt.Errorf("session too short: %w", errs.ErrInvalidSession)
	}

	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, []byte(CookieName))
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", errs.ErrInvalidSession)
	}

	var s models.Session
	if err := json.Unmarshal(plaintext, &s); err != nil {
		return nil, fmt.Errorf("unmarshalling session: %w", errs.ErrInvalidSession)
	}

	return &s, nil
}
