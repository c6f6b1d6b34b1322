package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"igsync/pkg/auth"
	"igsync/pkg/ui"
)

// newSecretManager is swapped in tests
var newSecretManager = func() (*auth.Manager, error) {
	return auth.NewManager("")
}

func newSecretCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets referenced as ${secret:NAME}",
		Long: `Manage secrets used by ${secret:NAME} placeholders in the config file.

Secrets are stored in:
  - the system keychain (when available)
  - an AES-GCM encrypted file with PBKDF2 key derivation
and can also be supplied read-only as IGSYNC_SECRET_NAME variables.

Never commit API keys to config files!`,
	}

	setCmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret (the value is read without echo)",
		Example: `  igsync secret set airtable_api_key
  echo "$KEY" | igsync secret set rapidapi_key`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := auth.ValidateName(name); err != nil {
				return err
			}
			manager, err := newSecretManager()
			if err != nil {
				return fmt.Errorf("failed to open secret store: %w", err)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Value for %s: ", name)
			value, err := readSecret(cmd.InOrStdin())
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}
			if value == "" {
				return errors.New("empty value, nothing stored")
			}

			if err := manager.Set(name, value); err != nil {
				return err
			}
			ui.PrintSuccess("Secret stored: " + name)
			ui.Println(fmt.Sprintf("Reference it in config.yaml as ${secret:%s}", name))
			return nil
		},
	}

	var reveal bool
	getCmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Show a secret (masked unless --reveal)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newSecretManager()
			if err != nil {
				return fmt.Errorf("failed to open secret store: %w", err)
			}
			secret, err := manager.Retrieve(args[0])
			if err != nil {
				return err
			}
			if reveal {
				fmt.Fprintln(cmd.OutOrStdout(), secret.Value)
				return nil
			}
			ui.PrintInfo(secret.Name, auth.SanitizeSecret(secret).Value)
			return nil
		},
	}
	getCmd.Flags().BoolVar(&reveal, "reveal", false, "print the plain value")

	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newSecretManager()
			if err != nil {
				return fmt.Errorf("failed to open secret store: %w", err)
			}
			if err := manager.Delete(args[0]); err != nil {
				return err
			}
			ui.PrintSuccess("Secret removed: " + args[0])
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored secrets with masked values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newSecretManager()
			if err != nil {
				return fmt.Errorf("failed to open secret store: %w", err)
			}
			secrets, err := manager.List()
			if err != nil {
				return err
			}
			if len(secrets) == 0 {
				ui.PrintInfo("No stored secrets", "use 'igsync secret set <name>' to add one")
				return nil
			}
			ui.PrintHighlight("Stored Secrets")
			for _, s := range secrets {
				masked := auth.SanitizeSecret(s)
				line := fmt.Sprintf("  %-24s %s", masked.Name, masked.Value)
				if !masked.LastModified.IsZero() {
					line += "  " + ui.Dim(masked.LastModified.Format("2006-01-02 15:04:05"))
				}
				ui.Println(line)
			}
			return nil
		},
	}

	guideCmd := &cobra.Command{
		Use:   "guide",
		Short: "Explain how to move API keys into the secret store",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			auth.ShowSecretGuide(cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(setCmd, getCmd, deleteCmd, listCmd, guideCmd)
	return cmd
}

// readSecret reads a value without echo from a terminal, or one line from
// any other reader.
func readSecret(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
