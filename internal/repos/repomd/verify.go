package repomd

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// loadKeyring parses public key bytes, accepting both armored and
// binary formats.
func loadKeyring(keyBytes []byte) (openpgp.EntityList, error) {
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(keyBytes))
	if err == nil {
		return keyring, nil
	}
	log.Debugf("Key is not armored, trying binary format: %v", err)

	keyring, err = openpgp.ReadKeyRing(bytes.NewReader(keyBytes))
	if err != nil {
		return nil, fmt.Errorf("parsing public key (tried armored and binary formats): %w", err)
	}
	return keyring, nil
}

// verifyDetachedSignature checks the armored detached signature over
// the given document using the repository's public key.
func verifyDetachedSignature(document, signature, keyBytes []byte) error {
	if !strings.Contains(string(signature), "-----BEGIN PGP SIGNATURE-----") {
		return fmt.Errorf("invalid signature format: missing PGP armor headers")
	}

	keyring, err := loadKeyring(keyBytes)
	if err != nil {
		return err
	}

	_, err = openpgp.CheckArmoredDetachedSignature(
		keyring,
		bytes.NewReader(document),
		bytes.NewReader(signature),
		&packet.Config{},
	)
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

// readKeySource loads public key bytes from a gpgkey reference, which
// may be a plain file path, a file:// URL, or an http(s) URL.
func (t *Transport) readKeySource(source string) ([]byte, error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return t.httpGet(source)

	case strings.HasPrefix(source, "file://"):
		return os.ReadFile(strings.TrimPrefix(source, "file://"))

	default:
		return os.ReadFile(source)
	}
}
