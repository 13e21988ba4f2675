// SPDX-License-Identifier: MPL-2.0

package hostkey

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/charmbracelet/log"
	gossh "golang.org/x/crypto/ssh"
)

const (
	TypeED25519 = "ed25519"
	TypeECDSA   = "ecdsa"
	TypeRSA     = "rsa"

	// FallbackRSABits is the size of the in-memory key used when no file loads.
	FallbackRSABits = 2048
	// DefaultRSABits is the size keygen uses for new RSA keys.
	DefaultRSABits = 3072
)

var (
	// ErrNoHostKey is returned when no key could be loaded or generated.
	ErrNoHostKey = errors.New("no usable host key")
	// ErrUnsupportedKeyType is returned by Generate for an unknown type.
	ErrUnsupportedKeyType = errors.New("unsupported key type")

	// Types lists the key types Generate accepts.
	Types = []string{TypeED25519, TypeECDSA, TypeRSA}

	generateRSA = rsa.GenerateKey
)

// Load parses every file in paths and returns one signer per key algorithm.
// Files that cannot be read or parsed are logged and skipped; a later file
// replaces an earlier one of the same algorithm. With nothing loaded, an
// in-memory RSA key is generated.
func Load(paths []string, logger *log.Logger) ([]gossh.Signer, error) {
	var (
		signers []gossh.Signer
		byType  = make(map[string]int)
	)

	for _, path := range paths {
		signer, err := loadFile(path)
		if err != nil {
			logger.Warn("Could not load host key", "path", path, "err", err)
			continue
		}
		keyType := signer.PublicKey().Type()
		if i, ok := byType[keyType]; ok {
			logger.Debug("Replacing host key", "type", keyType, "path", path)
			signers[i] = signer
			continue
		}
		byType[keyType] = len(signers)
		signers = append(signers, signer)
	}

	if len(signers) > 0 {
		return signers, nil
	}

	logger.Warn("No host key loaded, generating a temporary RSA key", "bits", FallbackRSABits)
	key, err := generateRSA(rand.Reader, FallbackRSABits)
	if err != nil {
		return nil, fmt.Errorf("%w: generate fallback key: %w", ErrNoHostKey, err)
	}
	signer, err := gossh.NewSignerFromKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoHostKey, err)
	}
	return []gossh.Signer{signer}, nil
}

func loadFile(path string) (gossh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := gossh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return signer, nil
}

// Generate creates a private key of the given type. bits applies to RSA only;
// zero selects DefaultRSABits.
func Generate(keyType string, bits int) (crypto.Signer, error) {
	switch keyType {
	case TypeED25519:
		_, key, err := ed25519.GenerateKey(rand.Reader)
		return key, err
	case TypeECDSA:
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case TypeRSA:
		if bits == 0 {
			bits = DefaultRSABits
		}
		return generateRSA(rand.Reader, bits)
	default:
		return nil, fmt.Errorf("%w: %q (want one of %v)", ErrUnsupportedKeyType, keyType, slices.Clone(Types))
	}
}

// Write stores key at path in OpenSSH format with mode 0600 and its public
// half at path + ".pub". An existing private key is only replaced when
// overwrite is set.
func Write(path string, key crypto.Signer, comment string, overwrite bool) error {
	block, err := gossh.MarshalPrivateKey(key, comment)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	pub, err := gossh.NewPublicKey(key.Public())
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	if err := pem.Encode(f, block); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	authorized := gossh.MarshalAuthorizedKey(pub)
	if comment != "" {
		authorized = append(authorized[:len(authorized)-1], []byte(" "+comment+"\n")...)
	}
	return os.WriteFile(path+".pub", authorized, 0o644)
}
