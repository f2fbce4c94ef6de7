package repository

import (
	"context"
	"fmt"

	"training-orchestrator/storage"
)

// OpenRunStore selects the run registry backend. With an empty dsn the JSONL
// manifest at manifestPath is used; otherwise the SQL database is opened and
// migrated. The returned close function is never nil.
func OpenRunStore(ctx context.Context, driver, dsn, manifestPath string) (RunStore, func() error, error) {
	if dsn == "" {
		return storage.NewManifest(manifestPath), func() error { return nil }, nil
	}
	db, err := NewDB(driver, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return NewRunRepository(db), db.Close, nil
}
