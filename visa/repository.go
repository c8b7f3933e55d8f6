package visa

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonanatree/visapay/visa/models"
)

// Repository is the in-memory Store. A single write lock covers the duplicate
// check and the append, so concurrent registrations of the same pair cannot
// both succeed.
type Repository struct {
	Cards    []*models.Card
	Payments []*models.Payment

	mu     sync.RWMutex
	nextID int64
	now    func() time.Time
}

func NewRepository() *Repository {
	return &Repository{
		Cards:    make([]*models.Card, 0),
		Payments: make([]*models.Payment, 0),
		now:      time.Now,
	}
}

var (
	_ Store      = (*Repository)(nil)
	_ CardLoader = (*Repository)(nil)
)

func (r *Repository) UpsertCard(_ context.Context, card *models.Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.Cards {
		if c.Number == card.Number {
			cp := *card
			r.Cards[i] = &cp
			return nil
		}
	}
	cp := *card
	r.Cards = append(r.Cards, &cp)
	return nil
}

// DeleteCard removes a card and, like the SQL foreign key, every payment that
// references it.
func (r *Repository) DeleteCard(_ context.Context, number string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := -1
	for i, c := range r.Cards {
		if c.Number == number {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("card: %w", models.ErrNotFound)
	}
	r.Cards = append(r.Cards[:idx], r.Cards[idx+1:]...)
	kept := r.Payments[:0]
	for _, p := range r.Payments {
		if p.CardNumber != number {
			kept = append(kept, p)
		}
	}
	r.Payments = kept
	return nil
}

func (r *Repository) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Cards = make([]*models.Card, 0)
	r.Payments = make([]*models.Payment, 0)
	return nil
}

func (r *Repository) FindCard(_ context.Context, q models.CardQuery) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.Cards {
		if q.Matches(c) {
			return true, nil
		}
	}
	return false, nil
}

func (r *Repository) CreatePayment(_ context.Context, p models.CreatePayment) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.cardExists(p.CardNumber) {
		return nil, fmt.Errorf("card %w", models.ErrNotFound)
	}
	for _, existing := range r.Payments {
		if existing.MerchantID == p.MerchantID && existing.TransactionID == p.TransactionID {
			return nil, fmt.Errorf("payment %s/%s: %w", p.MerchantID, p.TransactionID, models.ErrConflict)
		}
	}

	r.nextID++
	payment := &models.Payment{
		ID:            r.nextID,
		MerchantID:    p.MerchantID,
		TransactionID: p.TransactionID,
		Amount:        p.Amount,
		CardNumber:    p.CardNumber,
		CreatedAt:     r.now().UTC(),
		ResponseCode:  models.ResponseCodeOK,
	}
	r.Payments = append(r.Payments, payment)

	out := *payment
	return &out, nil
}

func (r *Repository) cardExists(number string) bool {
	for _, c := range r.Cards {
		if c.Number == number {
			return true
		}
	}
	return false
}

func (r *Repository) DeletePayment(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.Payments {
		if p.ID == id {
			r.Payments = append(r.Payments[:i], r.Payments[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("payment %d: %w", id, models.ErrNotFound)
}

// ListPayments returns all payments for a merchant in insertion order.
func (r *Repository) ListPayments(_ context.Context, merchantID string) ([]*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	payments := make([]*models.Payment, 0)
	for _, p := range r.Payments {
		if p.MerchantID == merchantID {
			cp := *p
			payments = append(payments, &cp)
		}
	}
	return payments, nil
}

func (r *Repository) Ping(context.Context) error { return nil }
