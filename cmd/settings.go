package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	settingsAccount string

	settingsCmd = &cobra.Command{
		Use:   "settings",
		Short: "Show or change the bundle settings of an account",
		Long: `Read and write the persisted bundle settings. The bundler must be stopped
when settings live in badger, use PUT /settings on a running one instead.`,
	}

	settingsShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLocal(settingsAccount)
			if err != nil {
				return err
			}
			defer l.Close()
			if err := l.requireAccount(); err != nil {
				return err
			}

			return printJSON(cmd, l.settingsStore().Snapshot())
		},
	}

	settingsSetCmd = &cobra.Command{
		Use:   "set key=value...",
		Short: "Update settings fields by their JSON name",
		Example: `  ap-bundler settings set isSponsored=false
  ap-bundler settings set noWrap=true wrapAmount=0`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := parsePatch(args)
			if err != nil {
				return err
			}

			l, err := openLocal(settingsAccount)
			if err != nil {
				return err
			}
			defer l.Close()
			if err := l.requireAccount(); err != nil {
				return err
			}

			updated, err := l.settingsStore().Apply(patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Settings saved for %s (policy %s)\n", l.account.Hex(), updated.Policy())
			return printJSON(cmd, updated)
		},
	}
)

func parsePatch(args []string) (map[string]interface{}, error) {
	patch := make(map[string]interface{}, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		patch[key] = value
	}
	return patch, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	settingsCmd.PersistentFlags().StringVar(&settingsAccount, "account", "", "delegated account address, defaults to the configured one")
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}
