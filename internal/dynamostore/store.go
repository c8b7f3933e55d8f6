// Package dynamostore keeps cards and payments in a single DynamoDB table.
//
// Every item is keyed by a string "pk":
//
//	CARD#<numero>              card
//	PAYMENT#<id>               payment
//	TXN#<len>#<merchant>#<txn> uniqueness guard for a payment
//	SEQ#payment                payment id counter
//
// A payment is written in one transaction with a condition that its card
// exists and a condition that its guard does not.
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jonanatree/visapay/visa/models"
)

const (
	typeCard    = "card"
	typePayment = "payment"
	typeGuard   = "guard"

	sequenceKey = "SEQ#payment"
)

type Config struct {
	Region   string
	Table    string
	Endpoint string
}

type Store struct {
	client *dynamodb.Client
	table  string
	now    func() time.Time
}

// New builds a client from the default AWS configuration chain. With an
// Endpoint (DynamoDB Local) and no credentials in the environment, static
// dummy credentials are used.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("dynamodb table is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Store{
		client: client,
		table:  cfg.Table,
		now:    time.Now,
	}, nil
}

type cardItem struct {
	PK         string `dynamodbav:"pk"`
	Type       string `dynamodbav:"type"`
	Number     string `dynamodbav:"numero"`
	HolderName string `dynamodbav:"nombre"`
	Expiry     string `dynamodbav:"fechaCaducidad"`
	AuthCode   string `dynamodbav:"codigoAutorizacion"`
}

type paymentItem struct {
	PK            string    `dynamodbav:"pk"`
	Type          string    `dynamodbav:"type"`
	ID            int64     `dynamodbav:"id"`
	MerchantID    string    `dynamodbav:"idComercio"`
	TransactionID string    `dynamodbav:"idTransaccion"`
	Amount        float64   `dynamodbav:"importe"`
	CardNumber    string    `dynamodbav:"tarjeta_id"`
	CreatedAt     time.Time `dynamodbav:"marcaTiempo"`
	ResponseCode  string    `dynamodbav:"codigoRespuesta"`
}

type guardItem struct {
	PK        string `dynamodbav:"pk"`
	Type      string `dynamodbav:"type"`
	PaymentID int64  `dynamodbav:"paymentId"`
}

func cardKey(number string) string { return "CARD#" + number }

func paymentKey(id int64) string { return "PAYMENT#" + strconv.FormatInt(id, 10) }

// guardKey length-prefixes the merchant so that no two pairs share a key.
func guardKey(merchantID, transactionID string) string {
	return fmt.Sprintf("TXN#%d#%s#%s", len(merchantID), merchantID, transactionID)
}

func key(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: pk}}
}

func (item paymentItem) toModel() *models.Payment {
	return &models.Payment{
		ID:            item.ID,
		MerchantID:    item.MerchantID,
		TransactionID: item.TransactionID,
		Amount:        item.Amount,
		CardNumber:    item.CardNumber,
		CreatedAt:     item.CreatedAt.UTC(),
		ResponseCode:  models.ResponseCode(item.ResponseCode),
	}
}

// EnsureTable creates the table on demand and waits until it is active.
func (s *Store) EnsureTable(ctx context.Context) error {
	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, 2*time.Minute); err != nil {
		return fmt.Errorf("waiting for table %s: %w", s.table, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err != nil {
		return fmt.Errorf("describing table: %w", err)
	}
	return nil
}

func (s *Store) UpsertCard(ctx context.Context, card *models.Card) error {
	if err := card.Validate(); err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(cardItem{
		PK:         cardKey(card.Number),
		Type:       typeCard,
		Number:     card.Number,
		HolderName: card.HolderName,
		Expiry:     card.Expiry,
		AuthCode:   card.AuthCode,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal card: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem operation failed: %w", err)
	}
	return nil
}

func (s *Store) FindCard(ctx context.Context, q models.CardQuery) (bool, error) {
	if q.IsEmpty() {
		return false, nil
	}

	if q.Number != "" {
		out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(s.table),
			Key:            key(cardKey(q.Number)),
			ConsistentRead: aws.Bool(true),
		})
		if err != nil {
			return false, fmt.Errorf("GetItem operation failed: %w", err)
		}
		if len(out.Item) == 0 {
			return false, nil
		}
		var item cardItem
		if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
			return false, fmt.Errorf("failed to unmarshal card: %w", err)
		}
		return q.Matches(cardFromItem(item)), nil
	}

	found := false
	err := s.scan(ctx, typeCard, nil, func(raw map[string]types.AttributeValue) (bool, error) {
		var item cardItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return false, fmt.Errorf("failed to unmarshal card: %w", err)
		}
		found = q.Matches(cardFromItem(item))
		return !found, nil
	})
	return found, err
}

func cardFromItem(item cardItem) *models.Card {
	return &models.Card{
		Number:     item.Number,
		HolderName: item.HolderName,
		Expiry:     item.Expiry,
		AuthCode:   item.AuthCode,
	}
}

func (s *Store) nextPaymentID(ctx context.Context) (int64, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:              key(sequenceKey),
		UpdateExpression: aws.String("ADD #v :one"),
		ExpressionAttributeNames: map[string]string{
			"#v": "value",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("UpdateItem operation failed: %w", err)
	}
	var seq struct {
		Value int64 `dynamodbav:"value"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &seq); err != nil {
		return 0, fmt.Errorf("failed to unmarshal sequence: %w", err)
	}
	return seq.Value, nil
}

func (s *Store) CreatePayment(ctx context.Context, p models.CreatePayment) (*models.Payment, error) {
	id, err := s.nextPaymentID(ctx)
	if err != nil {
		return nil, err
	}

	payment := paymentItem{
		PK:            paymentKey(id),
		Type:          typePayment,
		ID:            id,
		MerchantID:    p.MerchantID,
		TransactionID: p.TransactionID,
		Amount:        p.Amount,
		CardNumber:    p.CardNumber,
		CreatedAt:     s.now().UTC(),
		ResponseCode:  string(models.ResponseCodeOK),
	}
	paymentAV, err := attributevalue.MarshalMap(payment)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment: %w", err)
	}
	guardAV, err := attributevalue.MarshalMap(guardItem{
		PK:        guardKey(p.MerchantID, p.TransactionID),
		Type:      typeGuard,
		PaymentID: id,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal guard: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{ConditionCheck: &types.ConditionCheck{
				TableName:           aws.String(s.table),
				Key:                 key(cardKey(p.CardNumber)),
				ConditionExpression: aws.String("attribute_exists(pk)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(s.table),
				Item:                guardAV,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}},
			{Put: &types.Put{
				TableName: aws.String(s.table),
				Item:      paymentAV,
			}},
		},
	})
	if err != nil {
		return nil, translateCancel(err, []error{
			fmt.Errorf("card %w", models.ErrNotFound),
			fmt.Errorf("payment %s/%s: %w", p.MerchantID, p.TransactionID, models.ErrConflict),
		})
	}

	return payment.toModel(), nil
}

func (s *Store) DeletePayment(ctx context.Context, id int64) error {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            key(paymentKey(id)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("GetItem operation failed: %w", err)
	}
	if len(out.Item) == 0 {
		return fmt.Errorf("payment %d: %w", id, models.ErrNotFound)
	}
	var item paymentItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return fmt.Errorf("failed to unmarshal payment: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName:           aws.String(s.table),
				Key:                 key(paymentKey(id)),
				ConditionExpression: aws.String("attribute_exists(pk)"),
			}},
			{Delete: &types.Delete{
				TableName: aws.String(s.table),
				Key:       key(guardKey(item.MerchantID, item.TransactionID)),
			}},
		},
	})
	if err != nil {
		return translateCancel(err, []error{fmt.Errorf("payment %d: %w", id, models.ErrNotFound)})
	}
	return nil
}

func (s *Store) ListPayments(ctx context.Context, merchantID string) ([]*models.Payment, error) {
	payments := make([]*models.Payment, 0)
	err := s.scan(ctx, typePayment, map[string]string{"idComercio": merchantID}, func(raw map[string]types.AttributeValue) (bool, error) {
		var item paymentItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return false, fmt.Errorf("failed to unmarshal payment: %w", err)
		}
		payments = append(payments, item.toModel())
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(payments, func(i, j int) bool { return payments[i].ID < payments[j].ID })
	return payments, nil
}

// Clear deletes cards, payments and guards. The id counter is kept.
func (s *Store) Clear(ctx context.Context) error {
	var keys []string
	for _, typ := range []string{typePayment, typeGuard, typeCard} {
		err := s.scan(ctx, typ, nil, func(raw map[string]types.AttributeValue) (bool, error) {
			if pk, ok := raw["pk"].(*types.AttributeValueMemberS); ok {
				keys = append(keys, pk.Value)
			}
			return true, nil
		})
		if err != nil {
			return err
		}
	}

	const maxBatchSize = 25 // BatchWriteItem limit
	for i := 0; i < len(keys); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		requests := make([]types.WriteRequest, 0, end-i)
		for _, pk := range keys[i:end] {
			requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: key(pk)}})
		}

		pending := map[string][]types.WriteRequest{s.table: requests}
		for len(pending) > 0 {
			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("BatchWriteItem operation failed: %w", err)
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}

// scan visits every item of typ whose attributes equal the given values,
// until fn returns false.
func (s *Store) scan(ctx context.Context, typ string, equals map[string]string, fn func(map[string]types.AttributeValue) (bool, error)) error {
	filter := "#type = :type"
	names := map[string]string{"#type": "type"}
	values := map[string]types.AttributeValue{":type": &types.AttributeValueMemberS{Value: typ}}
	i := 0
	for attr, v := range equals {
		i++
		n, p := fmt.Sprintf("#a%d", i), fmt.Sprintf(":v%d", i)
		filter += fmt.Sprintf(" AND %s = %s", n, p)
		names[n] = attr
		values[p] = &types.AttributeValueMemberS{Value: v}
	}

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                 aws.String(s.table),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConsistentRead:            aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("Scan operation failed: %w", err)
		}
		for _, item := range page.Items {
			more, err := fn(item)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
	}
	return nil
}

// translateCancel maps the failed condition of a cancelled transaction to
// the error at the same index in byItem.
func translateCancel(err error, byItem []error) error {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return fmt.Errorf("TransactWriteItems operation failed: %w", err)
	}
	for i, reason := range tce.CancellationReasons {
		if aws.ToString(reason.Code) == "ConditionalCheckFailed" && i < len(byItem) {
			return byItem[i]
		}
	}
	return fmt.Errorf("transaction cancelled: %w", err)
}
