package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shelter-labs/sponsorship-storage/internal/secrets"
)

var (
	secretsProvider string
	secretsValues   secrets.ProviderSecrets
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage payment provider credentials stored in vault",
}

var secretsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store provider credentials in vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		cli, err := secrets.NewVaultClient(cfg.Vault.Address, cfg.Vault.Token)
		if err != nil {
			return err
		}

		if err := secrets.NewProviderRepo(cli, cfg.Vault.BasePath).Save(secretsProvider, secretsValues); err != nil {
			return err
		}

		fmt.Printf("%s credentials stored\n", secretsProvider)

		return nil
	},
}

func init() {
	flags := secretsSetCmd.Flags()
	flags.StringVar(&secretsProvider, "provider", "stripe", "payment provider name")
	flags.StringVar(&secretsValues.APIKey, "api-key", "", "provider api key")
	flags.StringVar(&secretsValues.WebhookSecret, "webhook-secret", "", "webhook signing secret")
	flags.StringVar(&secretsValues.ProductID, "product-id", "", "provider product the recurring prices attach to")
	_ = secretsSetCmd.MarkFlagRequired("api-key")

	secretsCmd.AddCommand(secretsSetCmd)
}
