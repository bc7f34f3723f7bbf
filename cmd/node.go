package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"crl/bank"
	"crl/capability"
	"crl/config"
	"crl/directory"
	"crl/events"
	"crl/exception"
	"crl/jsonrpc"
	"crl/ledger"
	"crl/logx"
	"crl/monitoring"
	"crl/store"
	"crl/utils"
)

var (
	nodeGenesisPath string
	nodeConfigPath  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the credit ledger node",
	Run: func(cmd *cobra.Command, args []string) {
		runNode(nodeGenesisPath, nodeConfigPath)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&nodeGenesisPath, "genesis", "config/genesis.yml", "Path to genesis configuration file")
	runCmd.Flags().StringVar(&nodeConfigPath, "config", "config/config.ini", "Path to node configuration file")
}

func runNode(genesisPath, configPath string) {
	genesis, err := config.LoadGenesisConfig(genesisPath)
	if err != nil {
		log.Fatalf("Failed to load genesis config: %v", err)
	}
	nodeCfg, err := config.LoadNodeConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load node config: %v", err)
	}

	provider, err := store.NewProvider(nodeCfg.DatabaseBackend, nodeCfg.DatabasePath, nodeCfg.RedisAddr)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer provider.Close()

	capStore, err := store.NewGenericCapabilityStore(provider)
	if err != nil {
		log.Fatalf("Failed to open capability store: %v", err)
	}
	registry := capability.NewRegistry(capStore)
	eventBus := events.NewEventBus(nodeCfg.EventBufferSize)

	bk := bank.NewMemoryBank()
	seedBank(bk, genesis)

	ld, err := ledger.NewLedger(genesis.LedgerAddress, provider, registry, bk, eventBus)
	if err != nil {
		log.Fatalf("Failed to open ledger: %v", err)
	}
	bootstrapLedger(ld, registry, genesis)

	dir, err := directory.NewDirectory(provider, registry, eventBus)
	if err != nil {
		log.Fatalf("Failed to open recipient directory: %v", err)
	}
	bootstrapDirectory(dir, genesis)

	monitoring.StartMetricsServer(nodeCfg.MetricsAddr)
	startEventLogger(eventBus)

	srv := jsonrpc.NewServer(nodeCfg.ListenAddr, ld, dir, registry)
	if corsCfg, ok := jsonrpc.CORSFromEnv(); ok {
		srv.SetCORSConfig(corsCfg)
	}
	srv.Start()
	logx.Info("NODE", fmt.Sprintf("JSON-RPC listening on %s, metrics on %s", nodeCfg.ListenAddr, nodeCfg.MetricsAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logx.Info("NODE", "Shutting down on signal:", sig)
}

// seedBank credits genesis reserve-currency balances. The ledger account
// itself holds the initial reserve.
func seedBank(bk *bank.MemoryBank, genesis *config.GenesisConfig) {
	if genesis.Reserve != "" {
		reserve, err := utils.ParseAmount(genesis.Reserve)
		if err != nil {
			log.Fatalf("Invalid genesis reserve amount: %v", err)
		}
		bk.Credit(genesis.LedgerAddress, reserve)
	}
	for _, holder := range genesis.Holders {
		amount, err := utils.ParseAmount(holder.Amount)
		if err != nil {
			log.Fatalf("Invalid genesis amount for holder %s: %v", holder.Address, err)
		}
		bk.Credit(holder.Address, amount)
	}
}

func bootstrapLedger(ld *ledger.Ledger, registry *capability.Registry, genesis *config.GenesisConfig) {
	initialized, err := ld.Initialized()
	if err != nil {
		log.Fatalf("Failed to read ledger state: %v", err)
	}
	if initialized {
		logx.Info("NODE", "Ledger already initialized, skipping genesis bootstrap")
		return
	}

	if err := ld.Initialize(genesis.Administrator); err != nil {
		log.Fatalf("Failed to initialize ledger: %v", err)
	}
	for _, operator := range genesis.Operators {
		if err := registry.Grant(genesis.Administrator, capability.Operator, operator); err != nil {
			log.Fatalf("Failed to grant operator capability to %s: %v", operator, err)
		}
	}
	logx.Info("NODE", fmt.Sprintf("Ledger initialized | administrator=%s | operators=%d", genesis.Administrator, len(genesis.Operators)))
}

func bootstrapDirectory(dir *directory.Directory, genesis *config.GenesisConfig) {
	if len(genesis.Recipients) == 0 || dir.Count() > 0 {
		return
	}

	accounts := make([]string, 0, len(genesis.Recipients))
	names := make([]string, 0, len(genesis.Recipients))
	descriptions := make([]string, 0, len(genesis.Recipients))
	for _, r := range genesis.Recipients {
		accounts = append(accounts, r.Address)
		names = append(names, r.Name)
		descriptions = append(descriptions, r.Description)
	}
	if err := dir.Add(genesis.Administrator, accounts, names, descriptions); err != nil {
		log.Fatalf("Failed to seed recipient directory: %v", err)
	}
}

// startEventLogger drains the event bus into the node log
func startEventLogger(eventBus *events.EventBus) {
	id, ch := eventBus.Subscribe()
	exception.SafeGo("event-logger", func() {
		defer eventBus.Unsubscribe(id)
		for event := range ch {
			logx.Info("EVENT", fmt.Sprintf("%s | account=%s", event.Type(), event.Account()))
		}
	})
}
