package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonanatree/visapay/internal/authcode"
	"github.com/jonanatree/visapay/internal/cardgen"
	"github.com/jonanatree/visapay/internal/expiry"
	"github.com/jonanatree/visapay/visa"
	"github.com/jonanatree/visapay/visa/models"
)

func (a *admin) cardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Manage cards",
	}
	cmd.AddCommand(a.cardAddCmd())
	return cmd
}

type cardAddOptions struct {
	number   string
	name     string
	expiry   string
	authCode string

	generate bool
	bin      string
	sequence string
	product  string
	years    int
	verbose  bool
}

func (a *admin) cardAddCmd() *cobra.Command {
	opts := cardAddOptions{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a card",
		Long: `Add or update a card from explicit fields, or generate one with --generate.

A generated card gets a Luhn-valid number under the BIN, an MM/YY expiry from
the product validity, and an authorization code derived with auth_key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store visa.AdminStore) error {
				card, err := a.buildCard(cmd.Context(), store, opts, time.Now())
				if err != nil {
					return err
				}
				if err := store.UpsertCard(cmd.Context(), card); err != nil {
					return err
				}

				number := cardgen.MaskPAN(card.Number)
				if opts.verbose {
					number = card.Number
				}
				fmt.Fprintf(cmd.OutOrStdout(), "numero: %s\nnombre: %s\nfechaCaducidad: %s\n", number, card.HolderName, card.Expiry)
				if opts.verbose {
					fmt.Fprintf(cmd.OutOrStdout(), "codigoAutorizacion: %s\n", card.AuthCode)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.number, "number", "", "card number")
	cmd.Flags().StringVar(&opts.name, "name", "", "cardholder name")
	cmd.Flags().StringVar(&opts.expiry, "expiry", "", "MM/YY expiry")
	cmd.Flags().StringVar(&opts.authCode, "auth-code", "", "three digit authorization code")
	cmd.Flags().BoolVar(&opts.generate, "generate", false, "generate number, expiry and authorization code")
	cmd.Flags().StringVar(&opts.bin, "bin", "", "BIN prefix for --generate (defaults to bin_prefix)")
	cmd.Flags().StringVar(&opts.sequence, "sequence", "", "numeric sequence placed before the check digit")
	cmd.Flags().StringVar(&opts.product, "product", "", "card product for --generate: credit|debit (defaults to card_product)")
	cmd.Flags().IntVar(&opts.years, "years", 0, "override validity years")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "print the full number and authorization code")
	return cmd
}

func (a *admin) buildCard(ctx context.Context, store visa.Store, opts cardAddOptions, now time.Time) (*models.Card, error) {
	if !opts.generate {
		card := &models.Card{
			Number:     opts.number,
			HolderName: opts.name,
			Expiry:     opts.expiry,
			AuthCode:   opts.authCode,
		}
		return card, card.Validate()
	}

	if a.config.AuthKey == "" {
		return nil, fmt.Errorf("--generate needs auth_key (VISA_AUTH_KEY)")
	}
	deriver, err := authcode.New([]byte(a.config.AuthKey))
	if err != nil {
		return nil, err
	}
	defer deriver.Wipe()

	bin := opts.bin
	if bin == "" {
		bin = a.config.BINPrefix
	}
	product := opts.product
	if product == "" {
		product = a.config.CardProduct
	}

	pan, err := cardgen.GenerateUniquePAN(bin, opts.sequence, 5, func(candidate string) (bool, error) {
		return store.FindCard(ctx, models.CardQuery{Number: cardgen.Group(candidate)})
	})
	if err != nil {
		return nil, err
	}

	face := expiry.CardFace(now, expiry.YearsForProduct(product, opts.years))
	card := &models.Card{
		Number:     cardgen.Group(pan),
		HolderName: opts.name,
		Expiry:     face,
		AuthCode:   deriver.Derive(pan, face),
	}
	return card, card.Validate()
}
