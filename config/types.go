package config

// RecipientEntry seeds one directory entry at genesis
type RecipientEntry struct {
	Address     string `yaml:"address"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// HolderEntry seeds one reserve-currency balance at genesis
type HolderEntry struct {
	Address string `yaml:"address"`
	Amount  string `yaml:"amount"`
}

// GenesisConfig holds the configuration from genesis.yml
type GenesisConfig struct {
	LedgerAddress string           `yaml:"ledger_address"`
	Administrator string           `yaml:"administrator"`
	Operators     []string         `yaml:"operators"`
	Recipients    []RecipientEntry `yaml:"recipients"`
	Reserve       string           `yaml:"reserve"`
	Holders       []HolderEntry    `yaml:"holders"`
}

// ConfigFile is the top-level structure for genesis.yml
type ConfigFile struct {
	Config GenesisConfig `yaml:"config"`
}

// NodeConfig holds the runtime settings from config.ini
type NodeConfig struct {
	ListenAddr      string `ini:"listen_addr"`
	MetricsAddr     string `ini:"metrics_addr"`
	DatabaseBackend string `ini:"database_backend"`
	DatabasePath    string `ini:"database_path"`
	RedisAddr       string `ini:"redis_addr"`
	EventBufferSize int    `ini:"event_buffer_size"`
}
