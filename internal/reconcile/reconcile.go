// Package reconcile drives one product certificate reconciliation run:
// resolve active repositories, fetch and install their product
// certificates, then bring the certificate store and the product
// database back in sync.
package reconcile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/enterstudio/subscription-manager/internal/productcert"
	"github.com/enterstudio/subscription-manager/internal/productdb"
	"github.com/enterstudio/subscription-manager/internal/repos"
	"github.com/enterstudio/subscription-manager/internal/rpmdb"
	"github.com/enterstudio/subscription-manager/internal/utils/logger"
	"github.com/enterstudio/subscription-manager/internal/utils/security"
	"github.com/enterstudio/subscription-manager/internal/utils/slice"
)

var log = logger.Logger()

// Config carries the immutable parameters of one run.
type Config struct {
	CertDir   string
	DBPath    string
	Workers   int
	CacheOnly bool
	OnlyRepos []string // when set, restricts the run to these repo IDs
	RunID     string   // correlates all log lines of one run
	Quiet     bool     // suppress the download progress bar
}

// Reconciler wires the metadata transport and the installed package
// source into the reconciliation state machine.
type Reconciler struct {
	transport repos.MetadataTransport
	installed rpmdb.InstalledSource
	cfg       Config
}

// New returns a Reconciler over the given collaborators.
func New(transport repos.MetadataTransport, installed rpmdb.InstalledSource, cfg Config) *Reconciler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Reconciler{
		transport: transport,
		installed: installed,
		cfg:       cfg,
	}
}

// skipped records one repository excluded from this run and why.
type skipped struct {
	repoID string
	reason error
}

// Run executes one reconciliation pass. Directory creation failures,
// a corrupt database, and repository enumeration failures are fatal;
// everything that only affects a single repository is logged, the
// repository is skipped, and the run continues.
func (r *Reconciler) Run() error {
	log.Infof("Starting product certificate reconciliation (run %s)", r.cfg.RunID)

	if err := os.MkdirAll(r.cfg.CertDir, 0755); err != nil {
		log.Errorf("Failed to create certificate store %s: %v", r.cfg.CertDir, err)
		return fmt.Errorf("creating certificate store %s: %w", r.cfg.CertDir, err)
	}
	if err := os.MkdirAll(filepath.Dir(r.cfg.DBPath), 0755); err != nil {
		log.Errorf("Failed to create product database directory: %v", err)
		return fmt.Errorf("creating product database directory: %w", err)
	}

	db := productdb.New(r.cfg.DBPath)
	if err := db.Load(); err != nil {
		return err
	}

	allRepos, err := r.transport.Repositories()
	if err != nil {
		log.Errorf("Repository enumeration failed: %v", err)
		return fmt.Errorf("enumerating repositories: %w", err)
	}

	installed, err := r.installed.InstalledNEVRAs()
	if err != nil {
		log.Errorf("Installed package enumeration failed: %v", err)
		return fmt.Errorf("listing installed packages: %w", err)
	}

	enabled := repos.Enabled(allRepos)
	if len(r.cfg.OnlyRepos) > 0 {
		var filtered []repos.Repository
		for _, repo := range enabled {
			if slice.Contains(r.cfg.OnlyRepos, repo.ID) {
				filtered = append(filtered, repo)
			}
		}
		log.Infof("Restricting run to %d of %d enabled repositories", len(filtered), len(enabled))
		enabled = filtered
	}
	candidates := repos.WithProductID(enabled)
	active := repos.Active(candidates, installed)
	log.Infof("Repositories: %d configured, %d enabled, %d with productid, %d active",
		len(allRepos), len(enabled), len(candidates), len(active))

	results := r.fetchAll(active)

	var skips []skipped
	for _, res := range results {
		if res.err != nil {
			log.Errorf("Repo %s: fetching productid failed: %v", res.repo.ID, res.err)
			skips = append(skips, skipped{res.repo.ID, res.err})
			continue
		}
		if err := r.installCertificate(db, res.repo, res.path); err != nil {
			log.Errorf("Repo %s: installing product certificate failed: %v", res.repo.ID, err)
			skips = append(skips, skipped{res.repo.ID, err})
		}
	}

	r.collectOrphans(db)

	if len(skips) > 0 {
		log.Warnf("Run %s skipped %d of %d active repositories:", r.cfg.RunID, len(skips), len(active))
		for _, s := range skips {
			log.Warnf("  %s: %v", s.repoID, s.reason)
		}
	}

	if err := db.Write(); err != nil {
		log.Errorf("Persisting product database failed: %v", err)
		return fmt.Errorf("persisting product database: %w", err)
	}

	log.Infof("Reconciliation complete (run %s): %d products on record", r.cfg.RunID, len(db.ProductIDs()))
	return nil
}

// installCertificate decodes the fetched artifact and publishes it as
// <certDir>/<productID>.pem, recording the repo in the database.
func (r *Reconciler) installCertificate(db *productdb.ProductDb, repo repos.Repository, artifactPath string) error {
	pemData, err := productcert.Decompress(artifactPath)
	if err != nil {
		return err
	}

	productID, err := productcert.ExtractProductID(pemData)
	if err != nil {
		return err
	}

	certPath := filepath.Join(r.cfg.CertDir, productID+".pem")
	if err := security.SafeWriteFile(certPath, pemData, 0644, security.RejectSymlinks); err != nil {
		return fmt.Errorf("writing product certificate %s: %w", certPath, err)
	}

	db.AddRepoID(productID, repo.ID)
	log.Infof("Repo %s provides product %s, certificate installed at %s", repo.ID, productID, certPath)
	return nil
}

// collectOrphans deletes numeric-stemmed certificates no longer backed
// by a database entry. Individual delete failures are logged only.
func (r *Reconciler) collectOrphans(db *productdb.ProductDb) {
	orphans, err := db.OrphanedCertIDs(r.cfg.CertDir)
	if err != nil {
		log.Errorf("Certificate store scan failed, skipping garbage collection: %v", err)
		return
	}

	for _, productID := range orphans {
		certPath := filepath.Join(r.cfg.CertDir, productID+".pem")
		if err := os.Remove(certPath); err != nil {
			log.Errorf("Failed to remove orphaned certificate %s: %v", certPath, err)
			continue
		}
		log.Infof("Removed orphaned certificate %s", certPath)
	}
}
