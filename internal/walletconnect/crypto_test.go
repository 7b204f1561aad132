package walletconnect

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyAgreementIsSymmetric(t *testing.T) {
	wallet, err := GenerateKeyPair()
	require.NoError(t, err)
	dapp, err := GenerateKeyPair()
	require.NoError(t, err)

	k1, err := DeriveSymKey(wallet.Private, dapp.PublicHex())
	require.NoError(t, err)
	k2, err := DeriveSymKey(dapp.Private, wallet.PublicHex())
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Len(t, k1, keyLength)
	assert.Equal(t, TopicFromKey(k1), TopicFromKey(k2))
	assert.Len(t, TopicFromKey(k1), 64)
}

func TestDeriveSymKeyRejectsBadPeerKey(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	_, err = DeriveSymKey(kp.Private, "abcd")
	assert.Error(t, err)
	_, err = DeriveSymKey(kp.Private, "zz")
	assert.Error(t, err)
}

func TestEnvelopeType0(t *testing.T) {
	symKey, _ := hex.DecodeString(testSymKey)
	msg, err := EncodeEnvelope(symKey, []byte(`{"id":1}`))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(msg)
	require.NoError(t, err)
	assert.Equal(t, envelopeType0, raw[0])

	payload, err := DecodeAndOpen(symKey, msg)
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, string(payload))

	other, _ := GenerateRandomBytes(keyLength)
	_, err = DecodeAndOpen(other, msg)
	assert.Error(t, err)
}

func TestEnvelopeType1(t *testing.T) {
	symKey, _ := hex.DecodeString(testSymKey)
	sender, err := GenerateKeyPair()
	require.NoError(t, err)

	msg, err := EncodeEnvelopeType1(symKey, sender.Public, []byte("hello"))
	require.NoError(t, err)

	env, err := DecodeEnvelope(msg)
	require.NoError(t, err)
	assert.Equal(t, envelopeType1, env.Type)
	assert.Equal(t, sender.Public, env.SenderPublicKey)

	payload, err := env.Open(symKey)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(payload))

	_, err = EncodeEnvelopeType1(symKey, []byte{1, 2}, []byte("hello"))
	assert.Error(t, err)
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := DecodeEnvelope("!!!")
	assert.Error(t, err)
	_, err = DecodeEnvelope("")
	assert.Error(t, err)
	_, err = DecodeEnvelope(base64.StdEncoding.EncodeToString([]byte{7, 1, 2, 3}))
	assert.Error(t, err)
	_, err = DecodeEnvelope(base64.StdEncoding.EncodeToString([]byte{0, 1, 2, 3}))
	assert.Error(t, err)
}
