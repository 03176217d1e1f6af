package objectstore

import (
	"fmt"

	"github.com/fernet/fernet-go"
)

// IsEncrypted reports whether s looks like a ciphertext produced by
// Encrypt. The positional check (characters two through six) is inherited
// from the existing blob corpus and must not change: every stored token
// matches it, and no plain JSON document does.
func IsEncrypted(s string) bool {
	return len(s) >= 6 && s[1:6] == "AAAAA"
}

// Cipher wraps a fernet key for the symmetric encryption layer applied to
// configuration documents and raw trip payloads.
type Cipher struct {
	key *fernet.Key
}

// NewCipher decodes a base64 fernet key.
func NewCipher(key string) (*Cipher, error) {
	k, err := fernet.DecodeKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	return &Cipher{key: k}, nil
}

// Encrypt produces an authenticated fernet token for plain.
func (c *Cipher) Encrypt(plain string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(plain), c.key)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt document: %w", err)
	}
	return string(tok), nil
}

// Decrypt verifies and opens a fernet token. Tokens have no expiry; blobs
// are read back years after they were written.
func (c *Cipher) Decrypt(token string) (string, error) {
	msg := fernet.VerifyAndDecrypt([]byte(token), 0, []*fernet.Key{c.key})
	if msg == nil {
		return "", fmt.Errorf("failed to verify ciphertext")
	}
	return string(msg), nil
}
