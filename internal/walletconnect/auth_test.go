package walletconnect

import (
	"crypto/ed25519"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDIDKeyRoundTrip(t *testing.T) {
	id, err := NewClientIdentity()
	require.NoError(t, err)

	did := id.ClientID()
	assert.True(t, strings.HasPrefix(did, "did:key:z6Mk"), did)

	pub, err := DecodeDIDKey(did)
	require.NoError(t, err)
	assert.Equal(t, id.key.Public().(ed25519.PublicKey), pub)

	_, err = DecodeDIDKey("did:key:zzz")
	assert.Error(t, err)
	_, err = DecodeDIDKey("did:web:example.com")
	assert.Error(t, err)
}

func TestSignJWTVerifiesWithClientKey(t *testing.T) {
	id, err := NewClientIdentity()
	require.NoError(t, err)

	now := time.Now()
	signed, err := id.SignJWT("wss://relay.example.com", now, time.Hour)
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(signed, claims, func(token *jwt.Token) (interface{}, error) {
		return DecodeDIDKey(token.Claims.(jwt.MapClaims)["iss"].(string))
	}, jwt.WithValidMethods([]string{"EdDSA"}))
	require.NoError(t, err)

	assert.Equal(t, "wss://relay.example.com", claims["aud"])
	assert.Equal(t, id.ClientID(), claims["iss"])
	assert.Len(t, claims["sub"], 64)
	assert.EqualValues(t, now.Add(time.Hour).Unix(), claims["exp"])
}
