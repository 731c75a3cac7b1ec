package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"orderpay-be/internal/alert"
	"orderpay-be/internal/auth"
	"orderpay-be/internal/payment"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func signCmd() *cobra.Command {
	var ref, paymentID, secret string

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Compute the callback signature for a gateway order and payment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("PAYMENT_WEBHOOK_SECRET")
			}
			v, err := payment.NewVerifier(secret)
			if err != nil {
				return err
			}
			if ref == "" || paymentID == "" {
				return fmt.Errorf("--ref and --payment are required")
			}
			fmt.Fprintln(cmd.OutOrStdout(), v.Sign(ref, paymentID))
			return nil
		},
	}

	cmd.Flags().StringVar(&ref, "ref", "", "Gateway order reference")
	cmd.Flags().StringVar(&paymentID, "payment", "", "Gateway payment id")
	cmd.Flags().StringVar(&secret, "secret", "", "Webhook secret (default $PAYMENT_WEBHOOK_SECRET)")

	return cmd
}

func convertCmd() *cobra.Command {
	var from, to, rate string

	cmd := &cobra.Command{
		Use:   "convert [amount-minor]",
		Short: "Preview a minor-unit currency conversion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			minor, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("amount must be an integer in minor units: %w", err)
			}
			r, err := decimal.NewFromString(rate)
			if err != nil {
				return fmt.Errorf("invalid rate %q: %w", rate, err)
			}

			from, to = strings.ToUpper(from), strings.ToUpper(to)
			out, err := payment.ConvertAmount(minor, from, to, r)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", out, to)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "USD", "Source currency")
	cmd.Flags().StringVar(&to, "to", "INR", "Target currency")
	cmd.Flags().StringVar(&rate, "rate", payment.DefaultUSDToINR.String(), "Units of target per unit of source")

	return cmd
}

func tokenCmd() *cobra.Command {
	var userID, role string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			tok, err := auth.IssueToken([]byte(secret), userID, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "ops", "Subject user id")
	cmd.Flags().StringVar(&role, "role", auth.RoleAdmin, "Role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")

	return cmd
}

func alertsCmd() *cobra.Command {
	var redisURL string
	var limit int64

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List recent alerts from the redis sink",
		RunE: func(cmd *cobra.Command, args []string) error {
			if redisURL == "" {
				redisURL = os.Getenv("REDIS_URL")
			}
			if redisURL == "" {
				return fmt.Errorf("--redis-url or REDIS_URL is required")
			}

			r, err := alert.NewRedisAlerter(redisURL)
			if err != nil {
				return err
			}
			defer r.Close()

			alerts, err := r.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, a := range alerts {
				if err := enc.Encode(a); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&redisURL, "redis-url", "", "Redis URL (default $REDIS_URL)")
	cmd.Flags().Int64VarP(&limit, "limit", "n", 20, "Maximum alerts")

	return cmd
}
