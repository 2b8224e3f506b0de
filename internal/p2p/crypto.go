package p2p

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const sessionKeySize = 32

// DeriveSessionKey derives the AES-256 session key from the short
// pairing code both users see and a per-session salt carried in the
// hello message. Same code + same salt on both devices yields the same
// key.
func DeriveSessionKey(pairingCode string, salt []byte) []byte {
	return argon2.IDKey([]byte(pairingCode), salt, 1, 64*1024, 4, sessionKeySize)
}

// NewSessionSalt returns a fresh random salt for a pairing handshake.
func NewSessionSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate session salt: %w", err)
	}
	return salt, nil
}

// sealPayload serializes v to JSON and encrypts it with AES-GCM under
// key. The nonce is fresh per message and returned alongside.
func sealPayload(v any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	return aesgcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// openPayload decrypts ciphertext with key/nonce and unmarshals the
// JSON into v.
func openPayload(ciphertext, nonce, key []byte, v any) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}
