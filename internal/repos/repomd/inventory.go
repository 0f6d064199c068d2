package repomd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/enterstudio/subscription-manager/internal/config/validate"
	"github.com/enterstudio/subscription-manager/internal/repos"
	"github.com/enterstudio/subscription-manager/internal/utils/security"
	"github.com/enterstudio/subscription-manager/internal/utils/slice"
	"gopkg.in/yaml.v3"
	sigsyaml "sigs.k8s.io/yaml"
)

// inventoryFile mirrors the repository inventory YAML document.
type inventoryFile struct {
	Repos []inventoryRepo `yaml:"repos" json:"repos"`
}

type inventoryRepo struct {
	ID            string            `yaml:"id" json:"id"`
	Name          string            `yaml:"name,omitempty" json:"name,omitempty"`
	BaseURLs      []string          `yaml:"baseurls" json:"baseurls"`
	Enabled       bool              `yaml:"enabled" json:"enabled"`
	GPGKey        string            `yaml:"gpgkey,omitempty" json:"gpgkey,omitempty"`
	RepoGPGCheck  bool              `yaml:"repo_gpgcheck" json:"repo_gpgcheck"`
	Substitutions map[string]string `yaml:"substitutions,omitempty" json:"substitutions,omitempty"`
}

// LoadInventory reads and validates the repository inventory at path
// and returns the declared repositories. Metadata fields (packages,
// productid availability) are not populated here.
func LoadInventory(path, cacheDir string) ([]repos.Repository, error) {
	data, err := security.SafeReadFile(path, security.RejectSymlinks)
	if err != nil {
		log.Errorf("Failed to read repository inventory %s: %v", path, err)
		return nil, fmt.Errorf("reading repository inventory %s: %w", path, err)
	}

	jsonData, err := sigsyaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("converting repository inventory to JSON for validation: %w", err)
	}
	if err := validate.ValidateRepoInventoryJSON(jsonData); err != nil {
		log.Errorf("Repository inventory %s failed schema validation: %v", path, err)
		return nil, fmt.Errorf("repository inventory validation failed: %w", err)
	}

	var inv inventoryFile
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("parsing repository inventory %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(inv.Repos))
	out := make([]repos.Repository, 0, len(inv.Repos))
	for _, entry := range inv.Repos {
		if _, dup := seen[entry.ID]; dup {
			return nil, fmt.Errorf("repository inventory %s declares repo %q twice", path, entry.ID)
		}
		seen[entry.ID] = struct{}{}

		out = append(out, repos.Repository{
			ID:            entry.ID,
			Name:          entry.Name,
			Enabled:       entry.Enabled,
			BaseURLs:      slice.Unique(entry.BaseURLs),
			DestDir:       filepath.Join(cacheDir, entry.ID),
			GPGKey:        entry.GPGKey,
			RepoGPGCheck:  entry.RepoGPGCheck,
			Substitutions: entry.Substitutions,
		})
	}

	log.Debugf("Loaded %d repositories from %s", len(out), path)
	return out, nil
}

// substituteVars expands $name and ${name} references in s from vars.
func substituteVars(s string, vars map[string]string) string {
	for name, value := range vars {
		s = strings.ReplaceAll(s, "${"+name+"}", value)
		s = strings.ReplaceAll(s, "$"+name, value)
	}
	return s
}
