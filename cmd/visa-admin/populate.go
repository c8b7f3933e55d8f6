package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonanatree/visapay/visa"
	"github.com/jonanatree/visapay/visa/models"
)

var csvColumns = []string{"numero", "nombre", "fechaCaducidad", "codigoAutorizacion"}

func (a *admin) populateCmd() *cobra.Command {
	var (
		csvPath string
		clean   bool
	)
	cmd := &cobra.Command{
		Use:   "populate",
		Short: "Load cards from a CSV file",
		Long: `Load cards from a CSV file with the header
numero,nombre,fechaCaducidad,codigoAutorizacion

Existing cards with the same number are updated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(csvPath)
			if err != nil {
				return err
			}
			defer f.Close()

			cards, err := readCards(f)
			if err != nil {
				return fmt.Errorf("%s: %w", csvPath, err)
			}

			return a.withStore(cmd.Context(), func(store visa.AdminStore) error {
				if clean {
					if err := store.Clear(cmd.Context()); err != nil {
						return fmt.Errorf("cleaning database: %w", err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Database cleaned successfully")
				}
				for _, card := range cards {
					if err := store.UpsertCard(cmd.Context(), card); err != nil {
						return fmt.Errorf("card %s: %w", card.Number, err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d cards loaded\n", len(cards))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file to load (required)")
	cmd.Flags().BoolVar(&clean, "clean", false, "delete all payments and cards first")
	cmd.MarkFlagRequired("csv")
	return cmd
}

// readCards parses the CSV by header name; extra columns are ignored.
func readCards(r io.Reader) ([]*models.Card, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file")
		}
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, col := range csvColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var cards []*models.Card
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		card := &models.Card{
			Number:     row[index["numero"]],
			HolderName: row[index["nombre"]],
			Expiry:     row[index["fechaCaducidad"]],
			AuthCode:   row[index["codigoAutorizacion"]],
		}
		if err := card.Validate(); err != nil {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		cards = append(cards, card)
	}
	return cards, nil
}
