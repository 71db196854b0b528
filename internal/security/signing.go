package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GenerateKeyPair creates a new ed25519 key pair (public+private)
func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// SaveKeyPair saves both keys as hex files
func SaveKeyPair(pub ed25519.PublicKey, priv ed25519.PrivateKey, pubPath, privPath string) error {
	if err := os.WriteFile(pubPath, []byte(hex.EncodeToString(pub)), 0o600); err != nil {
		return err
	}
	return os.WriteFile(privPath, []byte(hex.EncodeToString(priv)), 0o600)
}

// LoadPrivateKey loads an ed25519 private key from a hex-encoded file
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	keyBytes, err := readHex(path)
	if err != nil {
		return nil, err
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return ed25519.PrivateKey(keyBytes), nil
}

// LoadPublicKey loads an ed25519 public key from a hex-encoded file
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	keyBytes, err := readHex(path)
	if err != nil {
		return nil, err
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return nil, errors.New("invalid public key size")
	}
	return ed25519.PublicKey(keyBytes), nil
}

// EnsureKeyPair loads the key pair from dir, generating it on first use.
func EnsureKeyPair(dir string) (ed25519.PublicKey, ed25519.PrivateKey, bool, error) {
	pubPath := filepath.Join(dir, "ledger.pub")
	privPath := filepath.Join(dir, "ledger.priv")

	if _, err := os.Stat(privPath); errors.Is(err, os.ErrNotExist) {
		pub, priv, err := GenerateKeyPair()
		if err != nil {
			return nil, nil, false, err
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, nil, false, err
		}
		if err := SaveKeyPair(pub, priv, pubPath, privPath); err != nil {
			return nil, nil, false, err
		}
		return pub, priv, true, nil
	}

	priv, err := LoadPrivateKey(privPath)
	if err != nil {
		return nil, nil, false, fmt.Errorf("load %s: %w", privPath, err)
	}
	pub, err := LoadPublicKey(pubPath)
	if err != nil {
		return nil, nil, false, fmt.Errorf("load %s: %w", pubPath, err)
	}
	if !pub.Equal(priv.Public()) {
		return nil, nil, false, errors.New("public key does not match private key")
	}
	return pub, priv, false, nil
}

// SignData signs arbitrary data using a private key
func SignData(priv ed25519.PrivateKey, data []byte) string {
	return hex.EncodeToString(ed25519.Sign(priv, data))
}

// VerifySignature verifies a hex signature of data using a public key
func VerifySignature(pub ed25519.PublicKey, data []byte, sigHex string) (bool, error) {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, data, sig), nil
}

// VerifySignatureFromHex verifies when the public key is hex encoded
func VerifySignatureFromHex(pubHex string, data []byte, sigHex string) (bool, error) {
	pubBytes, err := hex.DecodeString(pubHex)
	if err != nil {
		return false, err
	}
	if len(pubBytes) != ed25519.PublicKeySize {
		return false, errors.New("invalid public key size")
	}
	return VerifySignature(ed25519.PublicKey(pubBytes), data, sigHex)
}

func readHex(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(strings.TrimSpace(string(data)))
}
