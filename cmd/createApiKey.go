package cmd

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-bundler/core/auth"
	bundlerconfig "github.com/AvaProtocol/ap-bundler/core/config"
)

type apiKeyOption struct {
	Roles   []string
	Subject string
	TTL     time.Duration
}

var (
	apiKeyOpts   = apiKeyOption{}
	createApiKey = &cobra.Command{
		Use:   "create-api-key",
		Short: "Create a JWT key to call the bundler HTTP API",
		Long:  `Create a JWT key signed with jwt_secret. A readonly key can query status, settings and submissions. An admin key can also prepare and submit bundles and change settings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bundlerconfig.NewConfig(config)
			if err != nil {
				return err
			}
			key, err := newApiKey(cfg.JwtSecret, apiKeyOpts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
)

func newApiKey(secret []byte, opt apiKeyOption) (string, error) {
	roles := lo.Map(opt.Roles, func(r string, _ int) auth.ApiRole {
		return auth.ApiRole(r)
	})
	return auth.CreateAPIKey(secret, opt.Subject, roles, opt.TTL)
}

func init() {
	createApiKey.Flags().StringArrayVar(&apiKeyOpts.Roles, "role", []string{}, "Role for API Key, admin or readonly")
	createApiKey.Flags().StringVarP(&apiKeyOpts.Subject, "subject", "s", "admin", "subject name to be use for jwt api key")
	createApiKey.Flags().DurationVar(&apiKeyOpts.TTL, "ttl", 0, "lifetime of the key, 0 never expires")
	rootCmd.AddCommand(createApiKey)
}
