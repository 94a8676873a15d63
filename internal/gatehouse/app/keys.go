package app

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/quayside/gatehouse/pkg/jwtx"
)

// buildCodec constructs a token codec for the configured algorithm. HMAC
// algorithms take their secret from the environment; RSA algorithms load a
// PEM-encoded private key from disk.
func buildCodec(algorithm, secret, keyFile string) (*jwtx.Codec, error) {
	switch {
	case strings.HasPrefix(algorithm, "HS"):
		if secret == "" {
			return nil, fmt.Errorf("%s requires a signing secret", algorithm)
		}
		return jwtx.NewHMACCodec(algorithm, []byte(secret))

	case strings.HasPrefix(algorithm, "RS"):
		if keyFile == "" {
			return nil, fmt.Errorf("%s requires a private key file", algorithm)
		}
		key, err := loadRSAPrivateKey(keyFile)
		if err != nil {
			return nil, fmt.Errorf("load private key %s: %w", keyFile, err)
		}
		return jwtx.NewRSACodec(algorithm, key)

	default:
		return nil, fmt.Errorf("unsupported signing algorithm: %s", algorithm)
	}
}

func loadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	// PKCS#8 is what openssl genpkey produces; fall back to PKCS#1 for
	// keys generated with openssl genrsa.
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA private key")
		}
		return rsaKey, nil
	}

	return x509.ParsePKCS1PrivateKey(block.Bytes)
}
