package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// createCompletionCommand creates the completion subcommand
func createCompletionCommand() *cobra.Command {
	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `Generate a shell completion script for Bash, Zsh, Fish, or PowerShell.

Examples:
  # Load completions for the current bash session
  source <(productid-reconciler completion bash)

  # Install bash completions system-wide
  productid-reconciler completion bash > /etc/bash_completion.d/productid-reconciler

  # Load completions for zsh
  productid-reconciler completion zsh > "${fpath[1]}/_productid-reconciler"`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE:      executeCompletion,
	}

	return completionCmd
}

// executeCompletion emits the completion script for the requested shell
func executeCompletion(cmd *cobra.Command, args []string) error {
	root := cmd.Root()
	switch args[0] {
	case "bash":
		return root.GenBashCompletionV2(os.Stdout, true)
	case "zsh":
		return root.GenZshCompletion(os.Stdout)
	case "fish":
		return root.GenFishCompletion(os.Stdout, true)
	case "powershell":
		return root.GenPowerShellCompletionWithDesc(os.Stdout)
	default:
		return fmt.Errorf("unsupported shell type %q", args[0])
	}
}
