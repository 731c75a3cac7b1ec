package main

import (
	"encoding/json"

	"orderpay-be/internal/product"

	"github.com/spf13/cobra"
)

func stockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Inspect and adjust product stock",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [product-id]",
		Short: "Show a product's current stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProducts(cmd, func(repo product.Repository) (*product.Product, error) {
				return repo.GetByID(cmd.Context(), args[0])
			})
		},
	})

	var name string
	var qty int
	set := &cobra.Command{
		Use:   "set [product-id]",
		Short: "Create a product or overwrite its stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProducts(cmd, func(repo product.Repository) (*product.Product, error) {
				return repo.Upsert(cmd.Context(), product.Product{ID: args[0], Name: name, Stock: qty})
			})
		},
	}
	set.Flags().StringVar(&name, "name", "", "Product name")
	set.Flags().IntVar(&qty, "qty", 0, "Units in stock")
	cmd.AddCommand(set)

	var add int
	restock := &cobra.Command{
		Use:   "add [product-id]",
		Short: "Add units to a product's stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProducts(cmd, func(repo product.Repository) (*product.Product, error) {
				return repo.Restock(cmd.Context(), args[0], add)
			})
		},
	}
	restock.Flags().IntVar(&add, "qty", 0, "Units to add")
	cmd.AddCommand(restock)

	return cmd
}

func withProducts(cmd *cobra.Command, fn func(product.Repository) (*product.Product, error)) error {
	_, database, err := connect()
	if err != nil {
		return err
	}
	defer database.Close()

	p, err := fn(product.NewRepository(database))
	if err != nil {
		return err
	}
	return json.NewEncoder(cmd.OutOrStdout()).Encode(p)
}
