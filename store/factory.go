package store

import (
	"fmt"

	"crl/db"
	"crl/logx"
)

const (
	BackendLevelDB = "leveldb"
	BackendRedis   = "redis"
	BackendMemory  = "memory"
)

// NewProvider creates the database provider for the configured backend.
// All stores of a node share one provider so that a single batch can commit
// an operation's mutations atomically across stores.
func NewProvider(backend, path, redisAddr string) (db.DatabaseProvider, error) {
	switch backend {
	case BackendLevelDB:
		logx.Info("STORE", "Using LevelDB backend at ", path)
		return db.NewLevelDBProvider(path)
	case BackendRedis:
		logx.Info("STORE", "Using Redis backend at ", redisAddr)
		return db.NewRedisProvider(redisAddr)
	case BackendMemory:
		logx.Info("STORE", "Using in-memory backend")
		return db.NewMemDBProvider(), nil
	default:
		return nil, fmt.Errorf("unknown database backend %q", backend)
	}
}
