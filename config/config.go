package config

import (
	"fmt"
	"os"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// LoadGenesisConfig reads and parses the genesis.yml file
func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfgFile); err != nil {
		return nil, err
	}
	if err := validateGenesis(&cfgFile.Config); err != nil {
		return nil, err
	}
	return &cfgFile.Config, nil
}

func validateGenesis(cfg *GenesisConfig) error {
	if cfg.LedgerAddress == "" {
		return fmt.Errorf("genesis: ledger_address is required")
	}
	if cfg.Administrator == "" {
		return fmt.Errorf("genesis: administrator is required")
	}
	for i, r := range cfg.Recipients {
		if r.Address == "" || r.Name == "" || r.Description == "" {
			return fmt.Errorf("genesis: recipient %d is incomplete", i)
		}
	}
	for i, h := range cfg.Holders {
		if h.Address == "" || h.Amount == "" {
			return fmt.Errorf("genesis: holder %d is incomplete", i)
		}
	}
	return nil
}

// LoadNodeConfig reads runtime settings from an .ini file. Missing keys fall
// back to defaults.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	nodeCfg := &NodeConfig{
		ListenAddr:      DefaultListenAddr,
		MetricsAddr:     DefaultMetricsAddr,
		DatabaseBackend: DefaultDatabaseBackend,
		DatabasePath:    DefaultDatabasePath,
		RedisAddr:       DefaultRedisAddr,
		EventBufferSize: DefaultEventBufferSize,
	}
	nodeSection := cfg.Section("node")
	if err := nodeSection.MapTo(nodeCfg); err != nil {
		return nil, err
	}
	return nodeCfg, nil
}
