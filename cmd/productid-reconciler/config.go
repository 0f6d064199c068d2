package main

import (
	"fmt"

	"github.com/enterstudio/subscription-manager/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// createConfigCommand creates the config subcommand
func createConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage global configuration for the product ID reconciler.

Available commands:
  init    Initialize a new configuration file with default values
  show    Print the effective configuration`,
	}

	configCmd.AddCommand(createConfigInitCommand())
	configCmd.AddCommand(createConfigShowCommand())

	return configCmd
}

// createConfigInitCommand creates the config init subcommand
func createConfigInitCommand() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init [config-file]",
		Short: "Initialize a new configuration file",
		Long: `Initialize a new configuration file with default values.

If no path is specified, the config will be created in the current
directory as productid-reconciler.yml

Examples:
  # Create config in current directory
  productid-reconciler config init

  # Create config at the system location
  productid-reconciler config init /etc/productid-reconciler/config.yml`,
		Args: cobra.MaximumNArgs(1),
		RunE: executeConfigInit,
	}

	return initCmd
}

// executeConfigInit handles the config init command logic
func executeConfigInit(cmd *cobra.Command, args []string) error {
	configPath := "productid-reconciler.yml"
	if len(args) > 0 {
		configPath = args[0]
	}

	defaultConfig := config.DefaultGlobalConfig()
	if err := defaultConfig.SaveGlobalConfig(configPath); err != nil {
		return fmt.Errorf("failed to save config file: %v", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Printf("\nDefault configuration settings:\n")
	fmt.Printf("  Certificate Store: %s\n", defaultConfig.CertDir)
	fmt.Printf("  Product Database: %s\n", defaultConfig.ProductDb)
	fmt.Printf("  Repository Inventory: %s\n", defaultConfig.ReposFile)
	fmt.Printf("  Cache Directory: %s\n", defaultConfig.CacheDir)
	fmt.Printf("  Workers: %d\n", defaultConfig.Workers)
	fmt.Printf("  Log Level: %s\n", defaultConfig.Logging.Level)
	fmt.Printf("\nEdit the configuration file to customize these settings.\n")

	return nil
}

// createConfigShowCommand creates the config show subcommand
func createConfigShowCommand() *cobra.Command {
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE:  executeConfigShow,
	}

	return showCmd
}

// executeConfigShow prints the merged configuration as YAML
func executeConfigShow(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(config.Global())
	if err != nil {
		return fmt.Errorf("rendering configuration: %v", err)
	}
	fmt.Print(string(data))
	return nil
}
