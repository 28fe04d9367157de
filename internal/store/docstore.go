package store

import (
	"context"
	"fmt"

	"rollcall/internal/clock"
	"rollcall/internal/config"
	"rollcall/internal/docstore"
)

// OpenDocStore connects the document store backend selected by
// cfg.StoreBackend. The returned close function releases the connection.
func OpenDocStore(ctx context.Context, cfg config.App) (docstore.Store, func(), error) {
	switch cfg.StoreBackend {
	case "memory":
		return docstore.NewMemory(clock.System{}.Now), func() {}, nil

	case "mongo":
		m, err := NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		ds := docstore.NewMongo(m.DB)
		if err := ds.EnsureIndexes(ctx); err != nil {
			_ = m.Close(context.Background())
			return nil, nil, err
		}
		return ds, func() { _ = m.Close(context.Background()) }, nil

	case "postgres":
		db, err := NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		ds, err := docstore.NewPostgres(ctx, db.Client)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return ds, func() { _ = db.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
}
