package walletconnect

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
	"moff.io/moff-wallet/pkg/errors"
)

const (
	keyLength = 32
	ivLength  = chacha20poly1305.NonceSize

	envelopeType0 byte = 0
	envelopeType1 byte = 1
)

// KeyPair is an X25519 key pair used for session key agreement.
type KeyPair struct {
	Private []byte
	Public  []byte
}

func (k *KeyPair) PublicHex() string {
	return hex.EncodeToString(k.Public)
}

// GenerateKeyPair returns a fresh X25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := GenerateRandomBytes(keyLength)
	if err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, errors.Wrap(err, "derive x25519 public key")
	}
	return &KeyPair{Private: priv, Public: pub}, nil
}

// DeriveSymKey runs X25519 between selfPrivate and peerPublicHex and expands
// the shared secret into a 32 byte key with HKDF-SHA256.
func DeriveSymKey(selfPrivate []byte, peerPublicHex string) ([]byte, error) {
	peer, err := hex.DecodeString(peerPublicHex)
	if err != nil || len(peer) != keyLength {
		return nil, errors.Errorf("invalid peer public key %q", peerPublicHex)
	}
	shared, err := curve25519.X25519(selfPrivate, peer)
	if err != nil {
		return nil, errors.Wrap(err, "x25519 key agreement")
	}
	symKey := make([]byte, keyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, nil), symKey); err != nil {
		return nil, errors.Wrap(err, "hkdf expand")
	}
	return symKey, nil
}

// TopicFromKey returns the relay topic bound to symKey.
func TopicFromKey(symKey []byte) string {
	sum := sha256.Sum256(symKey)
	return hex.EncodeToString(sum[:])
}

// EncodeEnvelope seals payload with symKey into a base64 type 0 envelope:
// 0x00 | iv | ciphertext.
func EncodeEnvelope(symKey, payload []byte) (string, error) {
	return encode(envelopeType0, nil, symKey, payload)
}

// EncodeEnvelopeType1 seals payload into a type 1 envelope that carries the
// sender public key: 0x01 | senderPublicKey | iv | ciphertext.
func EncodeEnvelopeType1(symKey, senderPublicKey, payload []byte) (string, error) {
	if len(senderPublicKey) != keyLength {
		return "", errors.New("type 1 envelope requires a sender public key")
	}
	return encode(envelopeType1, senderPublicKey, symKey, payload)
}

func encode(typ byte, senderPublicKey, symKey, payload []byte) (string, error) {
	aead, err := chacha20poly1305.New(symKey)
	if err != nil {
		return "", errors.Wrap(err, "create chacha20poly1305 cipher")
	}
	iv, err := GenerateRandomBytes(ivLength)
	if err != nil {
		return "", err
	}
	out := make([]byte, 0, 1+len(senderPublicKey)+ivLength+len(payload)+aead.Overhead())
	out = append(out, typ)
	out = append(out, senderPublicKey...)
	out = append(out, iv...)
	out = aead.Seal(out, iv, payload, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Envelope is a decoded, still encrypted relay message.
type Envelope struct {
	Type            byte
	SenderPublicKey []byte
	IV              []byte
	Sealed          []byte
}

// DecodeEnvelope splits a base64 relay message into its parts.
func DecodeEnvelope(message string) (*Envelope, error) {
	raw, err := base64.StdEncoding.DecodeString(message)
	if err != nil {
		return nil, errors.Wrap(err, "decode envelope base64")
	}
	if len(raw) == 0 {
		return nil, errors.New("empty envelope")
	}
	env := &Envelope{Type: raw[0]}
	rest := raw[1:]
	switch env.Type {
	case envelopeType0:
	case envelopeType1:
		if len(rest) < keyLength {
			return nil, errors.New("truncated type 1 envelope")
		}
		env.SenderPublicKey, rest = rest[:keyLength], rest[keyLength:]
	default:
		return nil, errors.Errorf("unsupported envelope type %d", env.Type)
	}
	if len(rest) < ivLength {
		return nil, errors.New("truncated envelope")
	}
	env.IV, env.Sealed = rest[:ivLength], rest[ivLength:]
	return env, nil
}

// Open decrypts the envelope with symKey.
func (e *Envelope) Open(symKey []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(symKey)
	if err != nil {
		return nil, errors.Wrap(err, "create chacha20poly1305 cipher")
	}
	payload, err := aead.Open(nil, e.IV, e.Sealed, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open envelope")
	}
	return payload, nil
}

// DecodeAndOpen decodes message and decrypts it with symKey.
func DecodeAndOpen(symKey []byte, message string) ([]byte, error) {
	env, err := DecodeEnvelope(message)
	if err != nil {
		return nil, err
	}
	return env.Open(symKey)
}

func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, errors.Wrap(err, "read random bytes")
	}
	return b, nil
}
