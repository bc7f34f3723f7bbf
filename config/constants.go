package config

const (
	DefaultListenAddr      = ":8545"
	DefaultMetricsAddr     = ":9100"
	DefaultDatabaseBackend = "leveldb"
	DefaultDatabasePath    = "data/ledger"
	DefaultRedisAddr       = "localhost:6379"
	DefaultEventBufferSize = 50
)
