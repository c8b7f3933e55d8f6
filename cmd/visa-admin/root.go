package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonanatree/visapay/internal/expiry"
	"github.com/jonanatree/visapay/visa"
)

// admin carries the loaded configuration to the subcommands.
type admin struct {
	configPath string
	config     *visa.Config
}

func newRootCmd() *cobra.Command {
	a := &admin{}

	root := &cobra.Command{
		Use:           "visa-admin",
		Short:         "Administer cards and payments of the visa payment service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := visa.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			if cfg.Backend != visa.BackendLocal {
				return fmt.Errorf("visa-admin needs a local store, backend is %q", cfg.Backend)
			}
			if cfg.Store == visa.StoreMemory {
				// nothing would outlive the command
				return fmt.Errorf("visa-admin needs a persistent store, store is %q", cfg.Store)
			}
			if len(cfg.ProductYears) > 0 {
				expiry.DefaultProductYears = cfg.ProductYears
			}
			a.config = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (defaults to $VISA_CONFIG)")

	root.AddCommand(a.populateCmd())
	root.AddCommand(a.cardCmd())
	root.AddCommand(a.paymentCmd())
	return root
}

// withStore opens the configured store for the duration of fn.
func (a *admin) withStore(ctx context.Context, fn func(visa.AdminStore) error) error {
	store, closeStore, err := visa.OpenStore(ctx, a.config)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", a.config.Store, err)
	}
	defer closeStore()
	return fn(store)
}
