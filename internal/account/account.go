// Package account holds the wallet's ephemeral signing identity.
package account

import (
	"crypto/ecdsa"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"moff.io/moff-wallet/pkg/errors"
)

// Account is a private key and the address derived from it. It lives in
// process memory only.
type Account struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// Generate creates an account from a fresh secp256k1 key.
func Generate() (*Account, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, errors.WrapAndReport(err, "generate private key")
	}
	return FromKey(key), nil
}

func FromKey(key *ecdsa.PrivateKey) *Account {
	return &Account{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

func (a *Account) Address() common.Address {
	return a.address
}

// Hex returns the EIP-55 checksummed address.
func (a *Account) Hex() string {
	return a.address.Hex()
}

// SignMessage signs msg as an EIP-191 personal message and returns the
// 0x-prefixed signature with V in {27, 28}.
func (a *Account) SignMessage(msg []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), a.key)
	if err != nil {
		return "", errors.Wrap(err, "sign personal message")
	}
	sig[crypto.RecoveryIDOffset] += 27 // Transform V from 0/1 to yellow paper 27/28
	return hexutil.Encode(sig), nil
}

// HexToBytes decodes a 0x-prefixed hex message.
func HexToBytes(s string) ([]byte, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, errors.Wrapf(err, "decode hex message %q", s)
	}
	return b, nil
}

// HexToString decodes 0x-prefixed hex into text. Invalid UTF-8 bytes
// become U+FFFD, so raw payloads such as hashes still decode.
func HexToString(s string) (string, error) {
	b, err := HexToBytes(s)
	if err != nil {
		return "", err
	}
	return Text(b), nil
}

// Text renders b as UTF-8, replacing each invalid byte with U+FFFD.
func Text(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}

// VerifyMessage reports whether signatureHex is a personal message signature
// of msg produced by signAddrHex.
func VerifyMessage(signAddrHex, signatureHex string, msg []byte) bool {
	sig, err := hexutil.Decode(signatureHex)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	recovered, err := crypto.SigToPub(accounts.TextHash(msg), sig)
	if err != nil {
		return false
	}
	return common.HexToAddress(signAddrHex) == crypto.PubkeyToAddress(*recovered)
}
