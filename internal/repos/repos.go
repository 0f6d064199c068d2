// Package repos models software repositories and decides which of them
// are active, meaning they supplied at least one installed package.
package repos

import (
	"fmt"

	"github.com/enterstudio/subscription-manager/internal/utils/logger"
)

var log = logger.Logger()

// ProductIDArtifact is the repomd record name of the product certificate.
const ProductIDArtifact = "productid"

// Repository describes one configured repository as seen by the
// metadata transport. Packages holds the NEVRA strings the repository
// makes available.
type Repository struct {
	ID            string
	Name          string
	Enabled       bool
	HasProductID  bool
	BaseURLs      []string
	DestDir       string
	GPGKey        string
	RepoGPGCheck  bool
	Substitutions map[string]string
	Packages      []string
}

// CloneSubstitutions returns an independent copy of the repository's
// URL variable map, so concurrent fetches cannot mutate each other.
func (r *Repository) CloneSubstitutions() map[string]string {
	out := make(map[string]string, len(r.Substitutions))
	for k, v := range r.Substitutions {
		out[k] = v
	}
	return out
}

// MetadataTransport is the repository metadata collaborator: it
// enumerates configured repositories and downloads named artifacts.
type MetadataTransport interface {
	// Repositories lists all configured repositories with their
	// enabled flags and available package sets populated.
	Repositories() ([]Repository, error)

	// FetchArtifact downloads the named repomd artifact for repo and
	// returns the local path where the transport placed it.
	FetchArtifact(repo Repository, artifact string) (string, error)
}

// FormatNEVRA renders the canonical name-epoch:version-release.arch
// identifier used for exact package matching.
func FormatNEVRA(name, epoch, version, release, arch string) string {
	if epoch == "" {
		epoch = "0"
	}
	return fmt.Sprintf("%s-%s:%s-%s.%s", name, epoch, version, release, arch)
}

// Enabled filters repositories to those participating in package
// operations, preserving enumeration order.
func Enabled(all []Repository) []Repository {
	var out []Repository
	for _, repo := range all {
		if repo.Enabled {
			out = append(out, repo)
		}
	}
	return out
}

// WithProductID filters repositories to those exposing a productid
// artifact, preserving enumeration order.
func WithProductID(candidates []Repository) []Repository {
	var out []Repository
	for _, repo := range candidates {
		if repo.HasProductID {
			out = append(out, repo)
		}
	}
	return out
}

// Active returns the repositories that supplied at least one installed
// package. A repository is active iff one of its available NEVRAs
// exactly equals an installed NEVRA; the scan of a repository stops at
// its first match. Installed membership uses a set, which gives the
// same result as a linear scan.
func Active(candidates []Repository, installed []string) []Repository {
	installedSet := make(map[string]struct{}, len(installed))
	for _, nevra := range installed {
		installedSet[nevra] = struct{}{}
	}

	var active []Repository
	for _, repo := range candidates {
		for _, nevra := range repo.Packages {
			if _, ok := installedSet[nevra]; ok {
				log.Debugf("Repository %s marked active due to installed package %s", repo.ID, nevra)
				active = append(active, repo)
				break
			}
		}
	}
	return active
}
