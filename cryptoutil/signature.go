package cryptoutil

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// KeyBits is the modulus size of every key pair generated by this package.
const KeyBits = 2048

const (
	privateKeyBlockType = "RSA PRIVATE KEY"
	publicKeyBlockType  = "PUBLIC KEY"
)

var ErrKeyFormat = errors.New("invalid key format")

// GenerateKeyPair returns a fresh RSA key pair, and the PEM encoding of the
// public half, which is what bidders send in REGISTER requests.
func GenerateKeyPair() (*rsa.PrivateKey, []byte, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("generate RSA key pair: %w", err)
	}

	pub, err := EncodePublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, err
	}

	return key, pub, nil
}

// BidSignBytes is the canonical message a bidder signs to authenticate a bid.
// The amount is used verbatim, as it appears on the wire.
func BidSignBytes(bidderID, amount string) []byte {
	return []byte(bidderID + ":" + amount)
}

// Sign signs msg with a PEM encoded private key.
func Sign(privateKeyPEM []byte, msg []byte) ([]byte, error) {
	key, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	return SignWithKey(key, msg)
}

// SignWithKey produces an RSASSA-PKCS1-v1_5 signature over the SHA-256 digest
// of msg.
func SignWithKey(key *rsa.PrivateKey, msg []byte) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("nil private key: %w", ErrKeyFormat)
	}

	digest := sha256.Sum256(msg)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign: %w", errors.Join(ErrKeyFormat, err))
	}

	return sig, nil
}

// Verify reports whether sig is a valid signature of msg by the holder of the
// PEM encoded public key. Malformed keys and signatures are simply invalid.
func Verify(publicKeyPEM []byte, msg []byte, sig []byte) bool {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return false
	}

	digest := sha256.Sum256(msg)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig) == nil
}

//
//
//

func EncodePrivateKey(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  privateKeyBlockType,
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

func ParsePrivateKey(b []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, fmt.Errorf("no PEM block: %w", ErrKeyFormat)
	}

	switch block.Type {
	case privateKeyBlockType:
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS#1 private key: %w", errors.Join(ErrKeyFormat, err))
		}
		return key, nil

	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS#8 private key: %w", errors.Join(ErrKeyFormat, err))
		}
		key, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key type %T: %w", k, ErrKeyFormat)
		}
		return key, nil

	default:
		return nil, fmt.Errorf("PEM block type %q: %w", block.Type, ErrKeyFormat)
	}
}

func EncodePublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", errors.Join(ErrKeyFormat, err))
	}

	return pem.EncodeToMemory(&pem.Block{Type: publicKeyBlockType, Bytes: der}), nil
}

// ParsePublicKey accepts both PKIX ("PUBLIC KEY") and PKCS#1 ("RSA PUBLIC
// KEY") PEM blocks, as different RSA toolkits export either.
func ParsePublicKey(b []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, fmt.Errorf("no PEM block: %w", ErrKeyFormat)
	}

	switch block.Type {
	case publicKeyBlockType:
		k, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKIX public key: %w", errors.Join(ErrKeyFormat, err))
		}
		pub, ok := k.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("public key type %T: %w", k, ErrKeyFormat)
		}
		return pub, nil

	case "RSA PUBLIC KEY":
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS#1 public key: %w", errors.Join(ErrKeyFormat, err))
		}
		return pub, nil

	default:
		return nil, fmt.Errorf("PEM block type %q: %w", block.Type, ErrKeyFormat)
	}
}
