package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"crl/config"
	"crl/logx"
)

var (
	initOutDir string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write sample genesis and node configuration files",
	Long: `Initialize a new ledger node by:
- Writing a sample genesis.yml with administrator, operators, recipients and reserve
- Writing a config.ini with listen address, metrics address and database settings`,
	Run: func(cmd *cobra.Command, args []string) {
		initializeNode()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initOutDir, "out", "config", "Directory to write configuration files into")
}

func initializeNode() {
	if err := os.MkdirAll(initOutDir, 0755); err != nil {
		logx.Error("CMD", "Failed to create config directory:", err)
		os.Exit(1)
	}

	genesisPath := filepath.Join(initOutDir, "genesis.yml")
	if err := writeSampleGenesis(genesisPath); err != nil {
		logx.Error("CMD", "Failed to write genesis config:", err)
		os.Exit(1)
	}

	configPath := filepath.Join(initOutDir, "config.ini")
	if err := writeSampleNodeConfig(configPath); err != nil {
		logx.Error("CMD", "Failed to write node config:", err)
		os.Exit(1)
	}

	logx.Info("CMD", fmt.Sprintf("Wrote %s and %s", genesisPath, configPath))
}

func writeSampleGenesis(path string) error {
	sample := config.ConfigFile{
		Config: config.GenesisConfig{
			LedgerAddress: "ledger-reserve",
			Administrator: "admin",
			Operators:     []string{"operator1"},
			Recipients: []config.RecipientEntry{
				{Address: "merchant1", Name: "Sample Merchant", Description: "Seeded payout recipient"},
			},
			Reserve: "1000000",
			Holders: []config.HolderEntry{
				{Address: "operator1", Amount: "500000"},
			},
		},
	}
	data, err := yaml.Marshal(&sample)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func writeSampleNodeConfig(path string) error {
	content := fmt.Sprintf(`[node]
listen_addr = %s
metrics_addr = %s
database_backend = %s
database_path = %s
redis_addr = %s
event_buffer_size = %d
`,
		config.DefaultListenAddr,
		config.DefaultMetricsAddr,
		config.DefaultDatabaseBackend,
		config.DefaultDatabasePath,
		config.DefaultRedisAddr,
		config.DefaultEventBufferSize,
	)
	return os.WriteFile(path, []byte(content), 0644)
}
