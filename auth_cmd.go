package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dgnsrekt/readaloud/internal/credential"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	authCmd = &cobra.Command{
		Use:   "auth",
		Short: "Manage the stored API key",
		Long: paragraph(fmt.Sprintf("\nManage the %s used for the text-to-speech API. A key in the config file or READALOUD_API_KEY takes precedence over the stored one.",
			keyword("API key"))),
		Args: cobra.NoArgs,
	}

	authSetCmd = &cobra.Command{
		Use:     "set",
		Short:   "Store an API key",
		Example: paragraph("readaloud auth set\necho $KEY | readaloud auth set"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := authFileStore()
			if err != nil {
				return err
			}
			key, err := readAPIKey()
			if err != nil {
				return err
			}
			if err := store.Set(credential.APIKey, key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Stored API key", credential.Mask(key), "in", store.Path())
			return nil
		},
	}

	authStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show where the API key is loaded from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := authFileStore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			sources := []struct {
				name  string
				store credential.Store
			}{
				{"config", credential.NewConfigStore(viper.GetViper())},
				{store.Path(), store},
			}
			found := false
			for _, src := range sources {
				key, err := src.store.Get(ctx, credential.APIKey)
				switch {
				case errors.Is(err, credential.ErrNotFound):
					fmt.Fprintf(out, "%s %s\n", subtle("none"), src.name)
				case err != nil:
					fmt.Fprintf(out, "%s %s: %v\n", subtle("error"), src.name, err)
				default:
					label := keyword("set")
					if found {
						label = subtle("unused")
					}
					fmt.Fprintf(out, "%s %s %s\n", label, src.name, credential.Mask(key))
					found = true
				}
			}
			if !found {
				return errors.New("no API key configured, run readaloud auth set")
			}
			return nil
		},
	}

	authClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := authFileStore()
			if err != nil {
				return err
			}
			if err := store.Delete(credential.APIKey); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Removed API key from", store.Path())
			return nil
		},
	}
)

func authFileStore() (*credential.FileStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return credentialFileStore(cfg)
}

// readAPIKey prompts without echo on a terminal and reads one line otherwise.
func readAPIKey() (string, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "API key: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("unable to read API key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("unable to read API key: %w", err)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return "", errors.New("empty API key")
	}
	return key, nil
}

func init() {
	authCmd.AddCommand(authSetCmd, authStatusCmd, authClearCmd)
}
