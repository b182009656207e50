package ledger

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/ripemd160"
)

// DeriveKey derives a key using HKDF-SHA256, so agent and account addresses
// are deterministic functions of a seed byte sequence.
func DeriveKey(seed []byte, salt []byte, info string, keyLen int) ([]byte, error) {
	hkdfReader := hkdf.New(sha256.New, seed, salt, []byte(info))
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// DeriveKeyPair derives a deterministic P-256 key pair from a seed and a
// "kind" discriminator (e.g. "agent", "treasury"), so repeated calls with the
// same seed/kind always produce the same address.
func DeriveKeyPair(seed []byte, kind string) (*ecdsa.PrivateKey, error) {
	scalarBytes, err := DeriveKey(seed, []byte(kind), "agent-address-v1", 32)
	if err != nil {
		return nil, err
	}

	curve := elliptic.P256()
	d := new(big.Int).SetBytes(scalarBytes)
	order := curve.Params().N
	d.Mod(d, order)
	if d.Sign() == 0 {
		d.SetInt64(1)
	}

	priv := new(ecdsa.PrivateKey)
	priv.PublicKey.Curve = curve
	priv.D = d
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(d.Bytes())
	return priv, nil
}

// PublicKeyToBytes returns the compressed SEC1 encoding of a public key.
func PublicKeyToBytes(pub *ecdsa.PublicKey) []byte {
	out := make([]byte, 33)
	if pub.Y.Bit(0) == 0 {
		out[0] = 0x02
	} else {
		out[0] = 0x03
	}
	xBytes := pub.X.Bytes()
	copy(out[1+(32-len(xBytes)):], xBytes)
	return out
}

// Hash160 computes RIPEMD160(SHA256(data)), matching the account-hash
// construction used throughout the substrate's entity addressing.
func Hash160(data []byte) []byte {
	sum := sha256.Sum256(data)
	r := ripemd160.New()
	r.Write(sum[:])
	return r.Sum(nil)
}

// AddressFromPublicKey derives a base58check address from a public key.
func AddressFromPublicKey(pub *ecdsa.PublicKey) string {
	return AddressFromScriptHash(Hash160(PublicKeyToBytes(pub)))
}

// AddressFromScriptHash encodes a 20-byte account hash as a base58check
// address with a fixed version byte.
func AddressFromScriptHash(hash []byte) string {
	const versionByte = 0x2A

	data := make([]byte, 21)
	data[0] = versionByte
	copy(data[1:], hash)

	h1 := sha256.Sum256(data)
	h2 := sha256.Sum256(h1[:])
	checksum := h2[:4]

	return base58Encode(append(data, checksum...))
}

// DeriveAddress derives the deterministic address for a seed/kind pair in
// one step.
func DeriveAddress(seed []byte, kind string) (string, error) {
	priv, err := DeriveKeyPair(seed, kind)
	if err != nil {
		return "", err
	}
	return AddressFromPublicKey(&priv.PublicKey), nil
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func base58Encode(input []byte) string {
	x := new(big.Int).SetBytes(input)
	base := big.NewInt(58)
	zero := big.NewInt(0)
	mod := new(big.Int)

	var out []byte
	for x.Cmp(zero) > 0 {
		x.DivMod(x, base, mod)
		out = append(out, base58Alphabet[mod.Int64()])
	}

	// Leading zero bytes map to leading '1's.
	for _, b := range input {
		if b != 0 {
			break
		}
		out = append(out, base58Alphabet[0])
	}

	// Reverse.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
