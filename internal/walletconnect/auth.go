package walletconnect

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mr-tron/base58"
	"moff.io/moff-wallet/pkg/errors"
)

const (
	didPrefix        = "did:key:"
	multibaseBase58  = "z"
	defaultAuthTTL   = 24 * time.Hour
	subjectByteCount = 32
)

// ed25519 public key multicodec prefix.
var multicodecEd25519Header = []byte{0xed, 0x01}

// ClientIdentity is the ed25519 key the client authenticates to the relay with.
type ClientIdentity struct {
	key ed25519.PrivateKey
}

func NewClientIdentity() (*ClientIdentity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generate relay client key")
	}
	return &ClientIdentity{key: priv}, nil
}

// ClientID returns the did:key identifier of the client public key.
func (c *ClientIdentity) ClientID() string {
	pub := c.key.Public().(ed25519.PublicKey)
	return EncodeDIDKey(pub)
}

// EncodeDIDKey encodes an ed25519 public key as a did:key string.
func EncodeDIDKey(pub ed25519.PublicKey) string {
	buf := make([]byte, 0, len(multicodecEd25519Header)+len(pub))
	buf = append(buf, multicodecEd25519Header...)
	buf = append(buf, pub...)
	return didPrefix + multibaseBase58 + base58.Encode(buf)
}

// DecodeDIDKey is the inverse of EncodeDIDKey.
func DecodeDIDKey(did string) (ed25519.PublicKey, error) {
	prefix := didPrefix + multibaseBase58
	if len(did) <= len(prefix) || did[:len(prefix)] != prefix {
		return nil, errors.Errorf("invalid did:key %q", did)
	}
	raw, err := base58.Decode(did[len(prefix):])
	if err != nil {
		return nil, errors.Wrap(err, "decode did:key base58")
	}
	if len(raw) != len(multicodecEd25519Header)+ed25519.PublicKeySize ||
		raw[0] != multicodecEd25519Header[0] || raw[1] != multicodecEd25519Header[1] {
		return nil, errors.Errorf("did:key %q is not an ed25519 key", did)
	}
	return ed25519.PublicKey(raw[len(multicodecEd25519Header):]), nil
}

// SignJWT builds the relay auth token for audience (the relay url).
func (c *ClientIdentity) SignJWT(audience string, now time.Time, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultAuthTTL
	}
	sub, err := GenerateRandomBytes(subjectByteCount)
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"iss": c.ClientID(),
		"sub": hex.EncodeToString(sub),
		"aud": audience,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", errors.Wrap(err, "sign relay auth jwt")
	}
	return signed, nil
}
