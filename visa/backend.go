package visa

import (
	"context"
	"fmt"

	"github.com/jonanatree/visapay/internal/dynamostore"
	"github.com/jonanatree/visapay/internal/sqlstore"
	"github.com/jonanatree/visapay/internal/visaclient"
)

// AdminStore is a Store that also accepts card records.
type AdminStore interface {
	Store
	CardLoader
}

// OpenStore opens the store named by cfg.Store and prepares its schema. The
// returned func releases it.
func OpenStore(ctx context.Context, cfg *Config) (AdminStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Store {
	case StoreMemory:
		return NewRepository(), noop, nil

	case StorePostgres, StoreSQLite:
		var (
			store *sqlstore.Store
			err   error
		)
		if cfg.Store == StorePostgres {
			store, err = sqlstore.OpenPostgres(ctx, cfg.DBDSN)
		} else {
			store, err = sqlstore.OpenSQLite(ctx, cfg.SQLitePath)
		}
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil

	case StoreDynamoDB:
		store, err := dynamostore.New(ctx, dynamostore.Config{
			Region:   cfg.DynamoDB.Region,
			Table:    cfg.DynamoDB.Table,
			Endpoint: cfg.DynamoDB.Endpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		// The table is only created against a local endpoint; in AWS it is
		// provisioned outside the service.
		if cfg.DynamoDB.Endpoint != "" {
			err = store.EnsureTable(ctx)
		} else {
			err = store.Ping(ctx)
		}
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store %q", cfg.Store)
	}
}

// remoteOperations builds the client for a rest or rpc backend.
func remoteOperations(cfg *Config) (Operations, error) {
	switch cfg.Backend {
	case BackendREST:
		return visaclient.NewREST(cfg.BackendURL, nil), nil
	case BackendRPC:
		return visaclient.NewRPC(cfg.BackendURL, nil), nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}
