package main

import (
	"fmt"
	"os"

	"orderpay-be/internal/config"
	"orderpay-be/internal/db"
	"orderpay-be/internal/logger"

	"github.com/spf13/cobra"
)

var Version = "dev"

var (
	loadConfigFunc = config.Load
	openDBFunc     = db.NewDatabase
)

func main() {
	defer logger.Sync()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "payctl",
		Short:         "Operator tooling for order payments",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(signCmd())
	rootCmd.AddCommand(convertCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(deliverCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(stockCmd())
	rootCmd.AddCommand(alertsCmd())

	return rootCmd
}
