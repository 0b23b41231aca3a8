package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/ucli-tools/registry/internal/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the GitHub token in the OS keyring",
	Long: `Store or remove the API token used when no token is configured.

Precedence: UCLI_TOKEN, GITHUB_TOKEN and the token config key win over the
keyring. Tokens are stored per web host (see web_url).`,
}

var tokenSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Read a token from stdin and store it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		webURL := v.GetString(config.KeyWebURL)
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read token from stdin: %w", err)
		}
		if err := config.StoreToken(webURL, strings.TrimSpace(line)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Token stored for %s\n", webURL)
		return nil
	},
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		webURL := v.GetString(config.KeyWebURL)
		if err := config.DeleteToken(webURL); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Token removed for %s\n", webURL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenSetCmd)
	tokenCmd.AddCommand(tokenClearCmd)
}
