package main

import (
	"github.com/enterstudio/subscription-manager/internal/config"
	"github.com/enterstudio/subscription-manager/internal/reconcile"
	"github.com/enterstudio/subscription-manager/internal/repos/repomd"
	"github.com/enterstudio/subscription-manager/internal/rpmdb"
	"github.com/enterstudio/subscription-manager/internal/utils/logger"
	"github.com/enterstudio/subscription-manager/internal/utils/slice"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// createRunCommand creates the run subcommand
func createRunCommand() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Perform one reconciliation pass",
		Long: `Perform one reconciliation pass: resolve the active repositories,
fetch and install their product certificates, garbage-collect orphaned
certificates, and persist the product database.

Examples:
  # Reconcile the live system
  productid-reconciler run

  # Reconcile an image build root, reading packages from its rpm database
  productid-reconciler run --installroot /mnt/sysroot

  # Treat a directory of .rpm files as the installed set
  productid-reconciler run --rpm-dir /var/cache/build/rpms

  # Reuse cached productid artifacts without network traffic
  productid-reconciler run --cache-only`,
		Args: cobra.NoArgs,
		RunE: executeRun,
	}

	runCmd.Flags().String("installroot", "", "Query the rpm database under an alternative root")
	runCmd.Flags().String("rpm-dir", "", "Read the installed set from a directory of .rpm files instead of the rpm database")
	runCmd.Flags().String("rpm-gpgkey", "", "Armored public key for verifying packages read via --rpm-dir")
	runCmd.Flags().Bool("cache-only", false, "Reuse cached productid artifacts, no downloads")
	runCmd.Flags().String("repos", "", "Comma-separated repo IDs to restrict the run to")
	runCmd.Flags().Bool("quiet", false, "Suppress the download progress bar")

	return runCmd
}

// executeRun handles the run command logic
func executeRun(cmd *cobra.Command, args []string) error {
	log := logger.Logger()

	installRoot, err := cmd.Flags().GetString("installroot")
	if err != nil {
		return err
	}
	rpmDir, err := cmd.Flags().GetString("rpm-dir")
	if err != nil {
		return err
	}
	rpmGPGKey, err := cmd.Flags().GetString("rpm-gpgkey")
	if err != nil {
		return err
	}
	cacheOnly, err := cmd.Flags().GetBool("cache-only")
	if err != nil {
		return err
	}
	repoFilter, err := cmd.Flags().GetString("repos")
	if err != nil {
		return err
	}
	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return err
	}

	if installRoot == "" {
		installRoot = config.InstallRoot()
	}
	if !cacheOnly {
		cacheOnly = config.CacheOnly()
	}

	var installed rpmdb.InstalledSource
	if rpmDir != "" {
		installed = &rpmdb.RpmDir{Dir: rpmDir, GPGKeyPath: rpmGPGKey}
	} else {
		installed = &rpmdb.Rpmdb{InstallRoot: installRoot}
	}

	transport := repomd.NewTransport(config.ReposFile(), config.CacheDir(), cacheOnly)

	runCfg := reconcile.Config{
		CertDir:   config.CertDir(),
		DBPath:    config.ProductDbPath(),
		Workers:   config.Workers(),
		CacheOnly: cacheOnly,
		OnlyRepos: slice.SplitCSV(repoFilter),
		RunID:     uuid.NewString(),
		Quiet:     quiet,
	}

	if err := reconcile.New(transport, installed, runCfg).Run(); err != nil {
		log.Errorf("Reconciliation failed: %v", err)
		return err
	}
	return nil
}
