package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/Joletx42/trans-aggregator-bot/internal/config"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/ports"
)

// Sealer encrypts addresses, coordinates and other personal fields
// before they reach postgres. Output is base64(nonce || ciphertext).
type Sealer struct {
	aead cipher.AEAD
}

func New(cfg config.Cryptoconfig) (ports.ISealer, error) {
	key, err := base64.StdEncoding.DecodeString(cfg.DataKey)
	if err != nil {
		return nil, fmt.Errorf("data key is not valid base64: %v", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("data key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

func (s *Sealer) Seal(plain string) (string, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("sealed value is not valid base64: %v", err)
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return "", fmt.Errorf("sealed value too short")
	}
	nonce, ciphertext := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("cannot open sealed value: %v", err)
	}
	return string(plain), nil
}
