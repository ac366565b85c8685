package main

import (
	"context"
	"log/slog"
	"time"

	"wekan-attachments/internal/config"
	"wekan-attachments/internal/store"
)

const storeCloseTimeout = 5 * time.Second

func connectStore(ctx context.Context, cfg *config.Config) (*store.Mongo, error) {
	slog.Debug("connecting to mongodb", "database", cfg.Database, "bucket", cfg.Bucket)
	return store.Connect(ctx, store.Options{
		URI:      cfg.MongoURI,
		Database: cfg.Database,
		Bucket:   cfg.Bucket,
	})
}

func closeStore(st *store.Mongo) {
	ctx, cancel := context.WithTimeout(context.Background(), storeCloseTimeout)
	defer cancel()
	if err := st.Close(ctx); err != nil {
		slog.Warn("failed to close mongodb connection", "err", err)
	}
}
