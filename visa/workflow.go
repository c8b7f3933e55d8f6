package visa

import (
	"context"
	"fmt"

	"github.com/jonanatree/visapay/internal/session"
	"github.com/jonanatree/visapay/visa/models"
)

// ErrCardRejected is returned by Verify when no card matches. It matches
// models.ErrNotFound.
var ErrCardRejected = fmt.Errorf("card %w", models.ErrNotFound)

// Workflow sequences card verification and payment registration. A
// successful Verify hands out a token that a single later Pay consumes.
type Workflow struct {
	ops      Operations
	sessions *session.Store
}

func NewWorkflow(ops Operations, sessions *session.Store) *Workflow {
	if sessions == nil {
		sessions = session.New(session.DefaultTTL)
	}
	return &Workflow{
		ops:      ops,
		sessions: sessions,
	}
}

// Verify checks the card and returns a verification token.
func (w *Workflow) Verify(ctx context.Context, q models.CardQuery) (string, error) {
	if q.Number == "" {
		return "", &models.ValidationError{Field: "numero", Reason: "is required"}
	}

	ok, err := w.ops.VerifyCard(ctx, q)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrCardRejected
	}

	return w.sessions.Issue(q.Number), nil
}

// Pay registers a payment for the card carried by token. The token is
// discarded whatever the outcome; an unknown token is models.ErrSequence.
func (w *Workflow) Pay(ctx context.Context, token string, fields models.PaymentFields) (*models.Payment, error) {
	card, ok := w.sessions.Take(token)
	if !ok {
		return nil, models.ErrSequence
	}

	return w.ops.RegisterPayment(ctx, models.CreatePayment{
		PaymentFields: fields,
		CardNumber:    card,
	})
}

// VerifyAndPay runs both steps in one call.
func (w *Workflow) VerifyAndPay(ctx context.Context, q models.CardQuery, fields models.PaymentFields) (*models.Payment, error) {
	token, err := w.Verify(ctx, q)
	if err != nil {
		return nil, err
	}
	return w.Pay(ctx, token, fields)
}

// Operations returns the operations the workflow runs on.
func (w *Workflow) Operations() Operations {
	return w.ops
}
