// Package iso8583 exposes the combined verify-and-pay operation over ISO 8583
// on a TCP listener.
package iso8583

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/moov-io/iso8583"
	connection "github.com/moov-io/iso8583-connection"
	"github.com/moov-io/iso8583-connection/server"
	"github.com/moov-io/iso8583/field"
	"golang.org/x/exp/slog"

	"github.com/jonanatree/visapay/internal/metrics"
	"github.com/jonanatree/visapay/visa/models"
)

// Processor runs card verification and payment registration as one step.
type Processor interface {
	VerifyAndPay(ctx context.Context, q models.CardQuery, fields models.PaymentFields) (*models.Payment, error)
}

type Server struct {
	Addr string

	logger    *slog.Logger
	processor Processor
	server    *server.Server
	timeout   time.Duration
}

func NewServer(logger *slog.Logger, addr string, processor Processor) *Server {
	return &Server{
		Addr:      addr,
		logger:    logger.With(slog.String("component", "iso8583")),
		processor: processor,
		timeout:   10 * time.Second,
	}
}

func (s *Server) Start() error {
	s.server = server.New(Spec, readMessageLength, writeMessageLength,
		connection.InboundMessageHandler(s.handleMessage),
	)

	if err := s.server.Start(s.Addr); err != nil {
		return fmt.Errorf("starting iso8583 server: %w", err)
	}
	s.Addr = s.server.Addr
	s.logger.Info("iso8583 server started", slog.String("addr", s.Addr))

	return nil
}

func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	s.server.Close()
	return nil
}

func (s *Server) handleMessage(c *connection.Connection, message *iso8583.Message) {
	mti, err := message.GetMTI()
	if err != nil {
		s.logger.Error("getting MTI", slog.Any("err", err))
		return
	}

	var reply *iso8583.Message
	switch mti {
	case MTIAuthorizationRequest:
		reply, err = s.authorize(message)
	case MTINetworkRequest:
		reply, err = s.echo(message)
	default:
		s.logger.Info("unsupported message", slog.String("mti", mti))
		return
	}
	if err != nil {
		s.logger.Error("handling message", slog.String("mti", mti), slog.Any("err", err))
		return
	}

	if err := c.Reply(reply); err != nil {
		s.logger.Error("replying", slog.String("mti", mti), slog.Any("err", err))
	}
}

func (s *Server) authorize(message *iso8583.Message) (*iso8583.Message, error) {
	req := &AuthorizationRequest{}
	if err := message.Unmarshal(req); err != nil {
		return nil, fmt.Errorf("unmarshaling authorization request: %w", err)
	}

	amount := 0.0
	if req.Amount != nil {
		amount = FromMinorUnits(req.Amount.Value())
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	payment, err := s.processor.VerifyAndPay(ctx,
		models.CardQuery{
			Number:     stringValue(req.CardNumber),
			HolderName: stringValue(req.HolderName),
			Expiry:     stringValue(req.Expiry),
			AuthCode:   stringValue(req.AuthCode),
		},
		models.PaymentFields{
			MerchantID:    stringValue(req.MerchantID),
			TransactionID: stringValue(req.TransactionID),
			Amount:        amount,
		},
	)

	resp := &AuthorizationResponse{
		MTI:            field.NewStringValue(MTIAuthorizationResponse),
		CardNumber:     req.CardNumber,
		Amount:         req.Amount,
		TransmissionAt: req.TransmissionAt,
		STAN:           req.STAN,
		TransactionID:  req.TransactionID,
		MerchantID:     req.MerchantID,
		Outcome:        field.NewStringValue(metrics.Outcome(err)),
	}
	if err != nil {
		resp.ResponseCode = field.NewStringValue(string(models.ResponseCodeError))
	} else {
		resp.ResponseCode = field.NewStringValue(string(payment.ResponseCode))
		resp.PaymentID = field.NewStringValue(strconv.FormatInt(payment.ID, 10))
	}

	reply := iso8583.NewMessage(Spec)
	if err := reply.Marshal(resp); err != nil {
		return nil, fmt.Errorf("marshaling authorization response: %w", err)
	}
	return reply, nil
}

func (s *Server) echo(message *iso8583.Message) (*iso8583.Message, error) {
	req := &NetworkMessage{}
	if err := message.Unmarshal(req); err != nil {
		return nil, fmt.Errorf("unmarshaling network message: %w", err)
	}

	reply := iso8583.NewMessage(Spec)
	err := reply.Marshal(&NetworkMessage{
		MTI:            field.NewStringValue(MTINetworkResponse),
		TransmissionAt: req.TransmissionAt,
		STAN:           req.STAN,
		ResponseCode:   field.NewStringValue(string(models.ResponseCodeOK)),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling network response: %w", err)
	}
	return reply, nil
}
