package rpmdb_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/enterstudio/subscription-manager/internal/rpmdb"
)

func TestRpmdbImplementsInstalledSource(t *testing.T) {
	var _ rpmdb.InstalledSource = &rpmdb.Rpmdb{}
	var _ rpmdb.InstalledSource = &rpmdb.RpmDir{}
}

func TestRpmdbQueriesLiveSystem(t *testing.T) {
	if _, err := os.Stat("/usr/bin/rpm"); err != nil {
		t.Skip("rpm not available on this host")
	}

	source := &rpmdb.Rpmdb{}
	nevras, err := source.InstalledNEVRAs()
	if err != nil {
		t.Fatalf("InstalledNEVRAs failed: %v", err)
	}
	for _, nevra := range nevras {
		if nevra == "" {
			t.Fatal("empty NEVRA in installed set")
		}
	}
}

func TestRpmDirMissingDirectory(t *testing.T) {
	source := &rpmdb.RpmDir{Dir: filepath.Join(t.TempDir(), "absent")}
	if _, err := source.InstalledNEVRAs(); err == nil {
		t.Error("expected error for missing rpm directory")
	}
}

func TestRpmDirSkipsNonRpmFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"README", "notes.txt", "broken.rpm"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("not an rpm"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	source := &rpmdb.RpmDir{Dir: dir}
	nevras, err := source.InstalledNEVRAs()
	if err != nil {
		t.Fatalf("InstalledNEVRAs failed: %v", err)
	}
	// broken.rpm does not parse and is skipped, everything else ignored
	if len(nevras) != 0 {
		t.Errorf("expected no packages, got %v", nevras)
	}
}

func TestRpmDirBadKeyPath(t *testing.T) {
	source := &rpmdb.RpmDir{
		Dir:        t.TempDir(),
		GPGKeyPath: filepath.Join(t.TempDir(), "missing-key.asc"),
	}
	if _, err := source.InstalledNEVRAs(); err == nil {
		t.Error("expected error for missing gpg key")
	}
}
