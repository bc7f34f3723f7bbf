package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"crl/logx"
)

var rootCmd = &cobra.Command{
	Use:   "crl",
	Short: "Collateralized credit ledger CLI",
	Long:  "Command line interface for running and managing a collateralized credit ledger node.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}
