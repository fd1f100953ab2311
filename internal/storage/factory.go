package storage

import "fmt"

func DefaultStoreKind() string {
	return "sqlite"
}

func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "memory":
		return NewMemoryStore(), nil
	case "", "sqlite":
		if sqlitePath == "" {
			return nil, fmt.Errorf("sqlite store requires a database path")
		}
		return NewSQLiteStore(sqlitePath), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
