package main

import (
	"context"

	"github.com/sells-group/topper-enrich/internal/store"
)

// openStore validates the store settings and opens the configured backend.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}
	return store.Open(ctx, cfg.Store)
}
