package rpmdb

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/enterstudio/subscription-manager/internal/repos"
	"github.com/sassoftware/go-rpmutils"
)

// RpmDir treats a directory of .rpm files as the installed set, which
// covers image-build style roots that have no rpm database yet. When
// GPGKeyPath is set, each package's signature is checked and unsigned
// or badly signed packages are rejected.
type RpmDir struct {
	Dir        string
	GPGKeyPath string
}

func (d *RpmDir) loadKeyring() (openpgp.EntityList, error) {
	if d.GPGKeyPath == "" {
		return nil, nil
	}
	f, err := os.Open(d.GPGKeyPath)
	if err != nil {
		return nil, fmt.Errorf("opening public key %s: %w", d.GPGKeyPath, err)
	}
	defer f.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return nil, fmt.Errorf("loading keyring %s: %w", d.GPGKeyPath, err)
	}
	return keyring, nil
}

// InstalledNEVRAs reads the headers of every .rpm file under Dir.
func (d *RpmDir) InstalledNEVRAs() ([]string, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		log.Errorf("Failed to scan rpm directory %s: %v", d.Dir, err)
		return nil, fmt.Errorf("scanning rpm directory %s: %w", d.Dir, err)
	}

	keyring, err := d.loadKeyring()
	if err != nil {
		return nil, err
	}

	var nevras []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rpm") {
			continue
		}
		path := filepath.Join(d.Dir, entry.Name())

		nevra, err := readNEVRA(path, keyring)
		if err != nil {
			log.Errorf("Skipping %s: %v", path, err)
			continue
		}
		nevras = append(nevras, nevra)
	}

	sort.Strings(nevras)
	log.Debugf("rpm directory %s lists %d packages", d.Dir, len(nevras))
	return nevras, nil
}

func readNEVRA(path string, keyring openpgp.EntityList) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening rpm: %w", err)
	}
	defer f.Close()

	if keyring != nil {
		if _, _, err := rpmutils.Verify(f, keyring); err != nil {
			return "", fmt.Errorf("signature check failed: %w", err)
		}
		if _, err := f.Seek(0, 0); err != nil {
			return "", fmt.Errorf("rewinding rpm: %w", err)
		}
	}

	rpm, err := rpmutils.ReadRpm(f)
	if err != nil {
		return "", fmt.Errorf("reading rpm header: %w", err)
	}

	nevra, err := rpm.Header.GetNEVRA()
	if err != nil {
		return "", fmt.Errorf("reading package NEVRA: %w", err)
	}

	return repos.FormatNEVRA(nevra.Name, nevra.Epoch, nevra.Version, nevra.Release, nevra.Arch), nil
}
