package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/XinsongDu/Twitter-Tracker/pkg/auth"
	"github.com/XinsongDu/Twitter-Tracker/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage API credential sets",
	Long: `Manage stored API credential sets. Each set becomes one lane.

Credential sets are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (TWTRACKER_APP_KEY, TWTRACKER_APP_SECRET, read only)

Sets from a config.json passed with --credentials are merged in at crawl time.`,
}

var authAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Store a credential set",
	Long: `Store an application key pair, or a ready bearer token, under a name.

Secrets are read without echo when stdin is a terminal.`,
	Example: `  twtracker auth add
  twtracker auth add research-key-1`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuthAdd,
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credential sets",
	Args:  cobra.NoArgs,
	RunE:  runAuthList,
}

var authRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove a stored credential set",
	Args:    cobra.ExactArgs(1),
	RunE:    runAuthRemove,
}

var authImportCmd = &cobra.Command{
	Use:   "import <config.json>",
	Short: "Store every credential set of a config.json file",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthImport,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authAddCmd)
	authCmd.AddCommand(authListCmd)
	authCmd.AddCommand(authRemoveCmd)
	authCmd.AddCommand(authImportCmd)
}

func runAuthAdd(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)

	var name string
	if len(args) > 0 {
		name = strings.TrimSpace(args[0])
	}
	if name == "" {
		fmt.Print("Credential set name: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read name: %w", err)
		}
		name = strings.TrimSpace(input)
	}
	if name == "" {
		return fmt.Errorf("a name is required")
	}

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Credential set '%s' already exists. Replace it? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	set := &auth.CredentialSet{Name: name}

	fmt.Print("Bearer token (leave empty to use an app key pair): ")
	if set.BearerToken, err = readSecret(reader); err != nil {
		return err
	}
	if set.BearerToken == "" {
		fmt.Print("App key: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read app key: %w", err)
		}
		set.AppKey = strings.TrimSpace(input)

		fmt.Print("App secret: ")
		if set.AppSecret, err = readSecret(reader); err != nil {
			return err
		}
	}

	if err := manager.Store(set); err != nil {
		return err
	}

	ui.PrintSuccess("Credential set saved: " + name)
	if auth.IsKeyringAvailable() {
		ui.PrintInfo("Stored in", "system keychain")
	} else {
		ui.PrintInfo("Stored in", "encrypted file")
	}
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	sets, err := manager.List()
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		ui.PrintInfo("No stored credential sets", "use 'twtracker auth add' to add one")
		return nil
	}

	ui.PrintHighlight("Stored Credential Sets")
	ui.Println()
	for i, set := range sets {
		s := auth.Sanitize(set)
		ui.Println(fmt.Sprintf("%d. %s", i+1, s.Name))
		if s.BearerToken != "" {
			ui.Println("   Bearer token: " + s.BearerToken)
		} else {
			ui.Println("   App key:    " + s.AppKey)
			ui.Println("   App secret: " + s.AppSecret)
		}
		if !s.LastModified.IsZero() {
			ui.Println("   Last modified: " + s.LastModified.Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}

func runAuthRemove(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	if err := manager.Delete(args[0]); err != nil {
		return err
	}
	ui.PrintSuccess("Credential set removed: " + args[0])
	return nil
}

func runAuthImport(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	sets, err := auth.LoadFile(args[0])
	if err != nil {
		return err
	}
	for _, set := range sets {
		if err := manager.Store(set); err != nil {
			return fmt.Errorf("store %s: %w", set.Name, err)
		}
	}
	ui.PrintSuccess(fmt.Sprintf("Imported %d credential set(s) from %s", len(sets), args[0]))
	return nil
}

// readSecret reads a line without echo when stdin is a terminal
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimSpace(input), nil
}
