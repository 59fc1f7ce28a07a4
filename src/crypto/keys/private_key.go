package keys

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
)

// GenerateECDSAKey creates a new secp256k1 private key.
func GenerateECDSAKey() (*ecdsa.PrivateKey, error) {
	priv, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		return nil, err
	}
	return priv.ToECDSA(), nil
}

// DumpPrivateKey exports a private key into a 32 byte binary dump of its D
// value.
func DumpPrivateKey(priv *ecdsa.PrivateKey) []byte {
	if priv == nil {
		return nil
	}
	return (*btcec.PrivateKey)(priv).Serialize()
}

// ParsePrivateKey creates a private key with the given D value.
func ParsePrivateKey(d []byte) (*ecdsa.PrivateKey, error) {
	if 8*len(d) != Curve().Params().BitSize {
		return nil, fmt.Errorf("invalid length, need %d bits", Curve().Params().BitSize)
	}

	D := new(big.Int).SetBytes(d)

	if D.Cmp(secp256k1N) >= 0 {
		return nil, fmt.Errorf("invalid private key, >=N")
	}

	if D.Sign() <= 0 {
		return nil, fmt.Errorf("invalid private key, zero or negative")
	}

	priv, _ := btcec.PrivKeyFromBytes(btcec.S256(), d)

	return priv.ToECDSA(), nil
}

// PrivateKeyHex returns the hexadecimal representation of a raw private key as
// returned by DumpPrivateKey
func PrivateKeyHex(key *ecdsa.PrivateKey) string {
	return hex.EncodeToString(DumpPrivateKey(key))
}

// DeviceID returns the DeviceId derived from the public key: "0x" followed by
// the upper-case hex of the compressed point.
func DeviceID(pub *ecdsa.PublicKey) string {
	return fmt.Sprintf("0x%X", (*btcec.PublicKey)(pub).SerializeCompressed())
}

// ParseDeviceID returns the public key a DeviceId was derived from.
func ParseDeviceID(id string) (*ecdsa.PublicKey, error) {
	if len(id) < 2 || id[:2] != "0x" {
		return nil, fmt.Errorf("device id %q should start with 0x", id)
	}

	raw, err := hex.DecodeString(id[2:])
	if err != nil {
		return nil, err
	}

	pub, err := btcec.ParsePubKey(raw, btcec.S256())
	if err != nil {
		return nil, err
	}

	return pub.ToECDSA(), nil
}
