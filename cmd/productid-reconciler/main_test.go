package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/enterstudio/subscription-manager/internal/config"
)

func TestCreateRootCommand(t *testing.T) {
	root := createRootCommand()

	if root.Use != "productid-reconciler" {
		t.Errorf("unexpected root command name: %s", root.Use)
	}

	want := map[string]bool{
		"run":        false,
		"version":    false,
		"config":     false,
		"completion": false,
	}
	for _, sub := range root.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %s", name)
		}
	}

	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("missing --config flag")
	}
	if root.PersistentFlags().Lookup("log-level") == nil {
		t.Error("missing --log-level flag")
	}
}

func TestRunCommandFlags(t *testing.T) {
	runCmd := createRunCommand()

	for _, name := range []string{"installroot", "rpm-dir", "rpm-gpgkey", "cache-only", "repos", "quiet"} {
		if runCmd.Flags().Lookup(name) == nil {
			t.Errorf("run command missing --%s flag", name)
		}
	}
}

func TestConfigInitCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")

	root := createRootCommand()
	root.SetArgs([]string{"config", "init", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("config init failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	cfg, err := config.LoadGlobalConfig(path)
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if cfg.CertDir != "/etc/pki/product" {
		t.Errorf("generated config has unexpected cert_dir: %s", cfg.CertDir)
	}
}

func TestCompletionRejectsUnknownShell(t *testing.T) {
	root := createRootCommand()
	root.SilenceErrors = true
	root.SilenceUsage = true
	root.SetArgs([]string{"completion", "tcsh"})
	if err := root.Execute(); err == nil {
		t.Error("expected error for unsupported shell")
	}
}

func TestCompletionGeneratesBash(t *testing.T) {
	root := createRootCommand()
	root.SetArgs([]string{"completion", "bash"})

	// Redirect stdout while the script is generated.
	old := os.Stdout
	devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = devnull
	defer func() {
		os.Stdout = old
		devnull.Close()
	}()

	if err := root.Execute(); err != nil {
		t.Errorf("bash completion generation failed: %v", err)
	}
}
