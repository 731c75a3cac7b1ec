package main

import (
	"database/sql"
	"fmt"
	"time"

	"orderpay-be/internal/alert"
	"orderpay-be/internal/config"
	"orderpay-be/internal/logger"
	"orderpay-be/internal/order"
	"orderpay-be/internal/reconcile"

	"github.com/spf13/cobra"
)

func opsService(database *sql.DB, alerter alert.Alerter) reconcile.Operations {
	return reconcile.NewOperations(order.NewRepository(database), alerter, nil)
}

func connect() (*config.Config, *sql.DB, error) {
	cfg, err := loadConfigFunc()
	if err != nil {
		return nil, nil, err
	}
	logger.Init(cfg.AppEnv)

	database, err := openDBFunc(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, database, nil
}

func deliverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deliver [order-id]",
		Short: "Mark a PAID order as delivered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, database, err := connect()
			if err != nil {
				return err
			}
			defer database.Close()

			svc := opsService(database, alert.LogAlerter{})
			if err := svc.MarkDelivered(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "order %s delivered\n", args[0])
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one pass of the unreconciled-inventory sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, database, err := connect()
			if err != nil {
				return err
			}
			defer database.Close()

			alerter, closer, err := alert.FromConfig(cfg, nil)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}

			if grace <= 0 {
				grace = cfg.SweepGrace
			}
			n, err := opsService(database, alerter).SweepUnreconciled(cmd.Context(), grace)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d unreconciled orders alerted\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&grace, "grace", 0, "Only consider claims older than this (default $SWEEP_GRACE)")

	return cmd
}
