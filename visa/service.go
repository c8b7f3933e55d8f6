package visa

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/exp/slog"

	"github.com/jonanatree/visapay/internal/cardgen"
	"github.com/jonanatree/visapay/internal/metrics"
	"github.com/jonanatree/visapay/visa/models"
)

// Operations is the transport-independent surface every adapter maps onto.
// *Service implements it against a Store; the clients in internal/visaclient
// implement it against a remote backend.
type Operations interface {
	VerifyCard(ctx context.Context, q models.CardQuery) (bool, error)
	RegisterPayment(ctx context.Context, p models.CreatePayment) (*models.Payment, error)
	DeletePayment(ctx context.Context, id int64) error
	ListPayments(ctx context.Context, merchantID string) ([]*models.Payment, error)
}

const (
	opVerifyCard      = "verify_card"
	opRegisterPayment = "register_payment"
	opDeletePayment   = "delete_payment"
	opListPayments    = "list_payments"
)

type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Recorder
}

var _ Operations = (*Service)(nil)

// NewService builds the service. logger and rec may be nil.
func NewService(store Store, logger *slog.Logger, rec *metrics.Recorder) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		store:   store,
		logger:  logger,
		metrics: rec,
	}
}

// VerifyCard reports whether a card matches every supplied field. An empty
// query is false and never reaches the store.
func (s *Service) VerifyCard(ctx context.Context, q models.CardQuery) (bool, error) {
	if q.IsEmpty() {
		s.metrics.ObserveOutcome(opVerifyCard, metrics.OutcomeNoMatch)
		return false, nil
	}

	found, err := s.store.FindCard(ctx, q)
	if err != nil {
		s.metrics.Observe(opVerifyCard, err)
		return false, fmt.Errorf("finding card: %w", err)
	}

	outcome := metrics.OutcomeOK
	if !found {
		outcome = metrics.OutcomeNoMatch
	}
	s.metrics.ObserveOutcome(opVerifyCard, outcome)
	s.logger.Debug("card verification", slog.String("card", cardgen.MaskPAN(q.Number)), slog.Bool("found", found))

	return found, nil
}

// RegisterPayment stores a new payment for an existing card.
func (s *Service) RegisterPayment(ctx context.Context, p models.CreatePayment) (*models.Payment, error) {
	payment, err := s.registerPayment(ctx, p)
	s.metrics.Observe(opRegisterPayment, err)
	if err != nil {
		s.logger.Info("payment rejected",
			slog.String("merchant", p.MerchantID),
			slog.String("transaction", p.TransactionID),
			slog.String("card", cardgen.MaskPAN(p.CardNumber)),
			slog.String("outcome", metrics.Outcome(err)),
		)
		return nil, err
	}

	s.logger.Info("payment registered",
		slog.Int64("id", payment.ID),
		slog.String("merchant", payment.MerchantID),
		slog.String("transaction", payment.TransactionID),
	)
	return payment, nil
}

func (s *Service) registerPayment(ctx context.Context, p models.CreatePayment) (*models.Payment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	payment, err := s.store.CreatePayment(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("registering payment: %w", err)
	}

	return payment, nil
}

func (s *Service) DeletePayment(ctx context.Context, id int64) error {
	err := s.store.DeletePayment(ctx, id)
	s.metrics.Observe(opDeletePayment, err)
	if err != nil {
		return fmt.Errorf("deleting payment: %w", err)
	}

	s.logger.Info("payment deleted", slog.Int64("id", id))
	return nil
}

// ListPayments returns the payments of a merchant in insertion order. An
// empty merchant id yields an empty list without querying the store.
func (s *Service) ListPayments(ctx context.Context, merchantID string) ([]*models.Payment, error) {
	if merchantID == "" {
		s.metrics.ObserveOutcome(opListPayments, metrics.OutcomeOK)
		return []*models.Payment{}, nil
	}

	payments, err := s.store.ListPayments(ctx, merchantID)
	s.metrics.Observe(opListPayments, err)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	if payments == nil {
		payments = []*models.Payment{}
	}

	return payments, nil
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
