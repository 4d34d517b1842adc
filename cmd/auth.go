package cmd

import (
	"bufio"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"supabasemcp/config"
)

var (
	keyFlag  string
	keyStdin bool
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the service role key stored in the OS keyring",
	Long: `Store the Supabase service role key in the OS keyring instead of the
environment. The server reads it when SUPABASE_SERVICE_ROLE_KEY is unset and
SUPABASE_MCP_KEYRING=true.`,
}

var authSetKeyCmd = &cobra.Command{
	Use:   "set-key",
	Short: "Store the service role key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		key := strings.TrimSpace(keyFlag)

		switch {
		case key != "":
		case keyStdin:
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return err
			}
			key = strings.TrimSpace(line)
		default:
			input, err := pterm.DefaultInteractiveTextInput.WithMask("*").Show("Service role key")
			if err != nil {
				return err
			}
			key = strings.TrimSpace(input)
		}

		store, err := config.OpenKeyStore()
		if err != nil {
			return err
		}
		if err := store.SetServiceRoleKey(key); err != nil {
			return err
		}

		pterm.Success.Println("Service role key stored in the OS keyring")
		pterm.Info.Println("Set " + config.EnvKeyring + "=true to use it")
		return nil
	},
}

var authClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored service role key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := config.OpenKeyStore()
		if err != nil {
			return err
		}
		if err := store.Clear(); err != nil {
			return err
		}

		pterm.Success.Println("Service role key removed from the OS keyring")
		return nil
	},
}

func init() {
	authSetKeyCmd.Flags().StringVar(&keyFlag, "key", "", "service role key (visible in shell history, prefer --stdin)")
	authSetKeyCmd.Flags().BoolVar(&keyStdin, "stdin", false, "read the key from stdin")

	authCmd.AddCommand(authSetKeyCmd, authClearCmd)
	rootCmd.AddCommand(authCmd)
}
