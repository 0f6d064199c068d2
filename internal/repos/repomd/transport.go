package repomd

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/enterstudio/subscription-manager/internal/repos"
	"github.com/google/uuid"
)

// repoState caches the resolved mirror and parsed repomd records of one
// repository for the lifetime of a Transport.
type repoState struct {
	baseURL string
	records map[string]string
}

// Transport loads the repository inventory and serves metadata and
// artifact downloads over HTTP. It implements repos.MetadataTransport.
type Transport struct {
	ReposFile string
	CacheDir  string
	CacheOnly bool

	client *http.Client

	mu     sync.Mutex
	states map[string]*repoState
}

// NewTransport returns a transport bound to the given inventory file
// and artifact cache directory.
func NewTransport(reposFile, cacheDir string, cacheOnly bool) *Transport {
	return &Transport{
		ReposFile: reposFile,
		CacheDir:  cacheDir,
		CacheOnly: cacheOnly,
		client:    &http.Client{Timeout: 5 * time.Minute},
		states:    make(map[string]*repoState),
	}
}

func (t *Transport) httpGet(url string) ([]byte, error) {
	resp, err := t.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: bad status: %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// resolveMetadata picks the first mirror that serves a parseable
// repomd.xml and caches its records. Substitutions are expanded on an
// independent copy of the repository's variable map.
func (t *Transport) resolveMetadata(repo repos.Repository) (*repoState, error) {
	t.mu.Lock()
	if state, ok := t.states[repo.ID]; ok {
		t.mu.Unlock()
		return state, nil
	}
	t.mu.Unlock()

	vars := repo.CloneSubstitutions()

	var lastErr error
	for _, raw := range repo.BaseURLs {
		baseURL := strings.TrimRight(substituteVars(raw, vars), "/")

		repomdBytes, err := t.httpGet(baseURL + "/repodata/repomd.xml")
		if err != nil {
			log.Warnf("Repo %s: mirror %s unusable: %v", repo.ID, baseURL, err)
			lastErr = err
			continue
		}

		if repo.RepoGPGCheck {
			if err := t.verifyRepomd(repo, baseURL, repomdBytes); err != nil {
				log.Errorf("Repo %s: repomd.xml signature check failed: %v", repo.ID, err)
				lastErr = err
				continue
			}
			log.Debugf("Repo %s: repomd.xml signature verified", repo.ID)
		}

		records, err := parseRepomdRecords(bytes.NewReader(repomdBytes))
		if err != nil {
			log.Warnf("Repo %s: mirror %s served unparseable repomd.xml: %v", repo.ID, baseURL, err)
			lastErr = err
			continue
		}

		state := &repoState{baseURL: baseURL, records: records}
		t.mu.Lock()
		t.states[repo.ID] = state
		t.mu.Unlock()
		return state, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no base URLs configured")
	}
	return nil, fmt.Errorf("resolving metadata for repo %s: %w", repo.ID, lastErr)
}

func (t *Transport) verifyRepomd(repo repos.Repository, baseURL string, repomdBytes []byte) error {
	if repo.GPGKey == "" {
		return fmt.Errorf("repo_gpgcheck enabled but no gpgkey configured")
	}

	signature, err := t.httpGet(baseURL + "/repodata/repomd.xml.asc")
	if err != nil {
		return fmt.Errorf("fetching repomd.xml.asc: %w", err)
	}

	keyBytes, err := t.readKeySource(substituteVars(repo.GPGKey, repo.CloneSubstitutions()))
	if err != nil {
		return fmt.Errorf("loading gpgkey %s: %w", repo.GPGKey, err)
	}

	return verifyDetachedSignature(repomdBytes, signature, keyBytes)
}

// loadPackages fetches and parses the repository's primary metadata
// into NEVRA strings.
func (t *Transport) loadPackages(repo repos.Repository, state *repoState) ([]string, error) {
	href, ok := state.records["primary"]
	if !ok {
		return nil, fmt.Errorf("repo %s: repomd.xml has no primary record", repo.ID)
	}

	resp, err := t.client.Get(state.baseURL + "/" + href)
	if err != nil {
		return nil, fmt.Errorf("fetching primary metadata for repo %s: %w", repo.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching primary metadata for repo %s: bad status: %s", repo.ID, resp.Status)
	}

	reader, closeReader, err := decompressByExt(resp.Body, href)
	if err != nil {
		return nil, fmt.Errorf("decoding primary metadata for repo %s: %w", repo.ID, err)
	}
	defer closeReader()

	nevras, err := parsePrimaryNEVRAs(reader)
	if err != nil {
		return nil, fmt.Errorf("parsing primary metadata for repo %s: %w", repo.ID, err)
	}
	return nevras, nil
}

// Repositories enumerates the configured repositories. For enabled
// repositories the productid availability flag and the available
// package set are populated from live metadata; a repository whose
// metadata cannot be loaded is returned without packages so the run can
// still reason about the rest.
func (t *Transport) Repositories() ([]repos.Repository, error) {
	inventory, err := LoadInventory(t.ReposFile, t.CacheDir)
	if err != nil {
		return nil, err
	}

	out := make([]repos.Repository, 0, len(inventory))
	for _, repo := range inventory {
		if !repo.Enabled {
			out = append(out, repo)
			continue
		}

		state, err := t.resolveMetadata(repo)
		if err != nil {
			log.Errorf("Repo %s: metadata unavailable, treating as inactive: %v", repo.ID, err)
			out = append(out, repo)
			continue
		}

		_, repo.HasProductID = state.records[repos.ProductIDArtifact]

		packages, err := t.loadPackages(repo, state)
		if err != nil {
			log.Errorf("Repo %s: package list unavailable, treating as inactive: %v", repo.ID, err)
			out = append(out, repo)
			continue
		}
		repo.Packages = packages

		log.Debugf("Repo %s: %d available packages, productid=%t", repo.ID, len(packages), repo.HasProductID)
		out = append(out, repo)
	}

	return out, nil
}

// FetchArtifact downloads the named repomd artifact for repo into the
// repository's destination directory and returns the local path. An
// existing artifact is updated, not replaced: the new payload is staged
// to a side file and only renamed over the old one when the content
// differs. With CacheOnly set, an existing artifact is reused without
// any network traffic.
func (t *Transport) FetchArtifact(repo repos.Repository, artifact string) (string, error) {
	state, err := t.resolveMetadata(repo)
	if err != nil {
		return "", err
	}

	href, ok := state.records[artifact]
	if !ok {
		if artifact == repos.ProductIDArtifact {
			return "", fmt.Errorf("repo %s: %w", repo.ID, ErrNoProductIDRecord)
		}
		return "", fmt.Errorf("repo %s: repomd.xml has no %s record", repo.ID, artifact)
	}

	if err := os.MkdirAll(repo.DestDir, 0755); err != nil {
		return "", fmt.Errorf("creating artifact directory %s: %w", repo.DestDir, err)
	}

	destPath := filepath.Join(repo.DestDir, path.Base(href))

	if t.CacheOnly {
		if fi, err := os.Stat(destPath); err == nil && fi.Size() > 0 {
			log.Debugf("Repo %s: reusing cached %s artifact %s", repo.ID, artifact, destPath)
			return destPath, nil
		}
		return "", fmt.Errorf("repo %s: cache-only run but %s artifact not cached", repo.ID, artifact)
	}

	payload, err := t.httpGet(state.baseURL + "/" + href)
	if err != nil {
		return "", fmt.Errorf("downloading %s artifact for repo %s: %w", artifact, repo.ID, err)
	}

	if existing, err := os.ReadFile(destPath); err == nil && bytes.Equal(existing, payload) {
		log.Debugf("Repo %s: %s artifact unchanged, keeping %s", repo.ID, artifact, destPath)
		return destPath, nil
	}

	stagePath := destPath + "." + uuid.NewString() + ".part"
	if err := os.WriteFile(stagePath, payload, 0644); err != nil {
		return "", fmt.Errorf("staging %s artifact for repo %s: %w", artifact, repo.ID, err)
	}
	if err := os.Rename(stagePath, destPath); err != nil {
		os.Remove(stagePath)
		return "", fmt.Errorf("installing %s artifact for repo %s: %w", artifact, repo.ID, err)
	}

	log.Debugf("Repo %s: fetched %s artifact to %s (%d bytes)", repo.ID, artifact, destPath, len(payload))
	return destPath, nil
}
