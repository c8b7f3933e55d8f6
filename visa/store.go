package visa

import (
	"context"

	"github.com/jonanatree/visapay/visa/models"
)

// Store persists cards and payments. Implementations must enforce the
// (merchant, transaction) uniqueness of payments atomically at write time and
// report violations as models.ErrConflict, and a missing card as
// models.ErrNotFound.
type Store interface {
	FindCard(ctx context.Context, q models.CardQuery) (bool, error)
	CreatePayment(ctx context.Context, p models.CreatePayment) (*models.Payment, error)
	DeletePayment(ctx context.Context, id int64) error
	ListPayments(ctx context.Context, merchantID string) ([]*models.Payment, error)
	Ping(ctx context.Context) error
}

// CardLoader is implemented by stores that accept card records from the
// administration tooling.
type CardLoader interface {
	UpsertCard(ctx context.Context, card *models.Card) error
	// Clear removes every payment and card.
	Clear(ctx context.Context) error
}
