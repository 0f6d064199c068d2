package main

import (
	"fmt"
	"os"

	"github.com/enterstudio/subscription-manager/internal/config"
	"github.com/enterstudio/subscription-manager/internal/utils/logger"
	"github.com/enterstudio/subscription-manager/internal/utils/security"
	"github.com/spf13/cobra"
)

// Command-line flags that can override config file settings
var (
	configFile string = "" // Path to config file
	logLevel   string = "" // Empty means use config file value
)

func main() {
	configFilePath := configFile
	if configFilePath == "" {
		configFilePath = config.FindConfigFile()
	}

	globalConfig, err := config.LoadGlobalConfig(configFilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	config.SetGlobal(globalConfig)

	_, cleanup, err := logger.InitWithConfig(logger.Config{
		Level:    globalConfig.Logging.Level,
		FilePath: globalConfig.Logging.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	rootCmd := createRootCommand()
	security.AttachRecursive(rootCmd, security.DefaultLimits())

	// Handle log level override after flag parsing
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if logLevel != "" {
			globalConfig.Logging.Level = logLevel
			config.SetGlobal(globalConfig)
			logger.SetLogLevel(logLevel)
		}
	}

	log := logger.Logger()
	if configFilePath != "" {
		log.Infof("Using configuration from: %s", configFilePath)
	}
	log.Debugf("Config: cert_dir=%s, product_db=%s, repos_file=%s, workers=%d",
		config.CertDir(), config.ProductDbPath(), config.ReposFile(), config.Workers())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// createRootCommand creates and configures the root cobra command with all subcommands
func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "productid-reconciler",
		Short: "Reconcile product certificates with active repositories",
		Long: `productid-reconciler keeps a host's product certificates in sync with the
repositories that actually supply its installed packages.

For every enabled repository that exposes a productid artifact, the tool
checks whether the repository contributed at least one installed package,
downloads and decodes the repository's product certificate, installs it
under the certificate store, and records the product in the product
database. Certificates whose product is no longer backed by any
repository are removed.

Use 'productid-reconciler run' to perform a reconciliation pass.`,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error)")

	rootCmd.AddCommand(createRunCommand())
	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createConfigCommand())
	rootCmd.AddCommand(createCompletionCommand())

	return rootCmd
}
