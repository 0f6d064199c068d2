package repomd_test

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/enterstudio/subscription-manager/internal/repos"
	"github.com/enterstudio/subscription-manager/internal/repos/repomd"
	"github.com/klauspost/compress/gzip"
)

const repomdXML = `<?xml version="1.0" encoding="UTF-8"?>
<repomd xmlns="http://linux.duke.edu/metadata/repo">
  <data type="primary">
    <checksum type="sha256">abc</checksum>
    <location href="repodata/primary.xml.gz"/>
  </data>
  <data type="productid">
    <checksum type="sha256">def</checksum>
    <location href="repodata/productid.gz"/>
  </data>
</repomd>`

const primaryXML = `<?xml version="1.0" encoding="UTF-8"?>
<metadata xmlns="http://linux.duke.edu/metadata/common" packages="2">
  <package type="rpm">
    <name>foo</name>
    <arch>x86_64</arch>
    <version epoch="0" ver="1.0" rel="1"/>
    <location href="Packages/foo-1.0-1.x86_64.rpm"/>
  </package>
  <package type="rpm">
    <name>bar</name>
    <arch>noarch</arch>
    <version epoch="2" ver="3.4" rel="5.fc38"/>
    <location href="Packages/bar-3.4-5.fc38.noarch.rpm"/>
  </package>
</metadata>`

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// testRepoServer serves a minimal repomd repository. The productid
// payload is swappable to exercise update semantics.
func testRepoServer(t *testing.T, productid *atomic.Value) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/os/x86_64/repodata/repomd.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, repomdXML)
	})
	mux.HandleFunc("/os/x86_64/repodata/primary.xml.gz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(gzipBytes(t, []byte(primaryXML)))
	})
	mux.HandleFunc("/os/x86_64/repodata/productid.gz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(productid.Load().([]byte))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeInventory(t *testing.T, baseURL string) string {
	t.Helper()
	content := fmt.Sprintf(`repos:
  - id: test-repo
    name: Test Repository
    enabled: true
    baseurls:
      - %s/os/$basearch
    substitutions:
      basearch: x86_64
  - id: disabled-repo
    enabled: false
    baseurls:
      - http://127.0.0.1:1/nowhere
`, baseURL)

	path := filepath.Join(t.TempDir(), "repos.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRepositoriesPopulatesMetadata(t *testing.T) {
	var productid atomic.Value
	productid.Store(gzipBytes(t, []byte("certificate payload")))
	srv := testRepoServer(t, &productid)

	transport := repomd.NewTransport(writeInventory(t, srv.URL), t.TempDir(), false)
	all, err := transport.Repositories()
	if err != nil {
		t.Fatalf("Repositories failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 repositories, got %d", len(all))
	}

	repo := all[0]
	if repo.ID != "test-repo" {
		t.Fatalf("expected test-repo first, got %s", repo.ID)
	}
	if !repo.HasProductID {
		t.Error("expected productid record to be detected")
	}
	wantPackages := []string{"foo-0:1.0-1.x86_64", "bar-2:3.4-5.fc38.noarch"}
	if len(repo.Packages) != 2 || repo.Packages[0] != wantPackages[0] || repo.Packages[1] != wantPackages[1] {
		t.Errorf("expected packages %v, got %v", wantPackages, repo.Packages)
	}

	disabled := all[1]
	if disabled.Enabled {
		t.Error("expected disabled-repo to stay disabled")
	}
	if len(disabled.Packages) != 0 {
		t.Error("disabled repos must not have metadata loaded")
	}
}

func TestRepositoriesMissingInventory(t *testing.T) {
	transport := repomd.NewTransport(filepath.Join(t.TempDir(), "absent.yml"), t.TempDir(), false)
	if _, err := transport.Repositories(); err == nil {
		t.Error("expected error for missing inventory file")
	}
}

func TestRepositoriesInvalidInventory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repos.yml")
	// Missing required baseurls.
	if err := os.WriteFile(path, []byte("repos:\n  - id: broken\n"), 0644); err != nil {
		t.Fatal(err)
	}

	transport := repomd.NewTransport(path, t.TempDir(), false)
	if _, err := transport.Repositories(); err == nil {
		t.Error("expected schema validation error for inventory without baseurls")
	}
}

func TestFetchArtifactDownloadsProductID(t *testing.T) {
	payload := gzipBytes(t, []byte("certificate payload"))
	var productid atomic.Value
	productid.Store(payload)
	srv := testRepoServer(t, &productid)

	cacheDir := t.TempDir()
	transport := repomd.NewTransport(writeInventory(t, srv.URL), cacheDir, false)
	all, err := transport.Repositories()
	if err != nil {
		t.Fatal(err)
	}

	path, err := transport.FetchArtifact(all[0], "productid")
	if err != nil {
		t.Fatalf("FetchArtifact failed: %v", err)
	}
	if filepath.Dir(path) != filepath.Join(cacheDir, "test-repo") {
		t.Errorf("artifact landed outside the repo cache dir: %s", path)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("downloaded artifact does not match served payload")
	}
}

func TestFetchArtifactUpdatesOnChange(t *testing.T) {
	first := gzipBytes(t, []byte("first payload"))
	var productid atomic.Value
	productid.Store(first)
	srv := testRepoServer(t, &productid)

	transport := repomd.NewTransport(writeInventory(t, srv.URL), t.TempDir(), false)
	all, err := transport.Repositories()
	if err != nil {
		t.Fatal(err)
	}

	path1, err := transport.FetchArtifact(all[0], "productid")
	if err != nil {
		t.Fatal(err)
	}

	// Unchanged payload keeps the existing file.
	path2, err := transport.FetchArtifact(all[0], "productid")
	if err != nil {
		t.Fatal(err)
	}
	if path1 != path2 {
		t.Errorf("artifact path should be stable, got %s then %s", path1, path2)
	}

	// Changed payload replaces the content.
	second := gzipBytes(t, []byte("second payload"))
	productid.Store(second)
	if _, err := transport.FetchArtifact(all[0], "productid"); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path1)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, second) {
		t.Error("artifact should have been updated to the new payload")
	}

	// No leftover staging files.
	entries, err := os.ReadDir(filepath.Dir(path1))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the artifact in the cache dir, found %d entries", len(entries))
	}
}

func TestFetchArtifactCacheOnly(t *testing.T) {
	payload := gzipBytes(t, []byte("cached payload"))
	var productid atomic.Value
	productid.Store(payload)
	srv := testRepoServer(t, &productid)

	cacheDir := t.TempDir()
	inventory := writeInventory(t, srv.URL)

	// Warm the cache with a normal fetch.
	warm := repomd.NewTransport(inventory, cacheDir, false)
	all, err := warm.Repositories()
	if err != nil {
		t.Fatal(err)
	}
	warmPath, err := warm.FetchArtifact(all[0], "productid")
	if err != nil {
		t.Fatal(err)
	}

	cached := repomd.NewTransport(inventory, cacheDir, true)
	path, err := cached.FetchArtifact(all[0], "productid")
	if err != nil {
		t.Fatalf("cache-only fetch of warmed artifact failed: %v", err)
	}
	if path != warmPath {
		t.Errorf("cache-only fetch should reuse %s, got %s", warmPath, path)
	}

	// A cold cache is an error in cache-only mode.
	cold := repomd.NewTransport(inventory, t.TempDir(), true)
	if _, err := cold.FetchArtifact(all[0], "productid"); err == nil {
		t.Error("expected error for cache-only fetch with cold cache")
	}
}

func TestFetchArtifactNoProductIDRecord(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repodata/repomd.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<repomd><data type="primary"><location href="repodata/primary.xml.gz"/></data></repomd>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	content := fmt.Sprintf("repos:\n  - id: bare\n    enabled: true\n    baseurls:\n      - %s\n", srv.URL)
	inventory := filepath.Join(t.TempDir(), "repos.yml")
	if err := os.WriteFile(inventory, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	transport := repomd.NewTransport(inventory, t.TempDir(), false)
	repo := repos.Repository{ID: "bare", Enabled: true, BaseURLs: []string{srv.URL}, DestDir: t.TempDir()}
	if _, err := transport.FetchArtifact(repo, "productid"); !errors.Is(err, repomd.ErrNoProductIDRecord) {
		t.Errorf("expected ErrNoProductIDRecord, got %v", err)
	}
}

func TestResolveMetadataMirrorFallback(t *testing.T) {
	var productid atomic.Value
	productid.Store(gzipBytes(t, []byte("payload")))
	srv := testRepoServer(t, &productid)

	content := fmt.Sprintf(`repos:
  - id: test-repo
    enabled: true
    baseurls:
      - http://127.0.0.1:1/dead-mirror
      - %s/os/x86_64
`, srv.URL)
	inventory := filepath.Join(t.TempDir(), "repos.yml")
	if err := os.WriteFile(inventory, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	transport := repomd.NewTransport(inventory, t.TempDir(), false)
	all, err := transport.Repositories()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || len(all[0].Packages) != 2 {
		t.Errorf("expected metadata from the second mirror, got %+v", all)
	}
}
