package main

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jonanatree/visapay/internal/cardgen"
	"github.com/jonanatree/visapay/visa"
)

func (a *admin) paymentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Inspect and delete payments",
	}
	cmd.AddCommand(a.paymentListCmd())
	cmd.AddCommand(a.paymentDeleteCmd())
	return cmd
}

func (a *admin) paymentListCmd() *cobra.Command {
	var merchantID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the payments of a merchant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store visa.AdminStore) error {
				payments, err := visa.NewService(store, nil, nil).ListPayments(cmd.Context(), merchantID)
				if err != nil {
					return err
				}

				table := tablewriter.NewWriter(cmd.OutOrStdout())
				table.SetHeader([]string{"id", "idComercio", "idTransaccion", "importe", "tarjeta", "marcaTiempo", "codigoRespuesta"})
				for _, p := range payments {
					table.Append([]string{
						strconv.FormatInt(p.ID, 10),
						p.MerchantID,
						p.TransactionID,
						strconv.FormatFloat(p.Amount, 'f', 2, 64),
						cardgen.MaskPAN(p.CardNumber),
						p.CreatedAt.Format("2006-01-02 15:04:05"),
						string(p.ResponseCode),
					})
				}
				table.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&merchantID, "merchant", "", "merchant id (required)")
	cmd.MarkFlagRequired("merchant")
	return cmd
}

func (a *admin) paymentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid payment id %q", args[0])
			}
			return a.withStore(cmd.Context(), func(store visa.AdminStore) error {
				if err := visa.NewService(store, nil, nil).DeletePayment(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "payment %d deleted\n", id)
				return nil
			})
		},
	}
}
