package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/creastat/shopper"
	"github.com/creastat/shopper/workspace"
)

var (
	// profile set flags
	pfMinBudget int
	pfMaxBudget int
	pfUseCases  []string
	pfBrands    []string
)

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileSetCmd)

	profileSetCmd.Flags().IntVar(&pfMinBudget, "min-budget", -1, "Minimum budget (omit to leave unset)")
	profileSetCmd.Flags().IntVar(&pfMaxBudget, "max-budget", -1, "Maximum budget (omit to leave unset)")
	profileSetCmd.Flags().StringSliceVar(&pfUseCases, "use-case", nil, "Intended use (repeatable)")
	profileSetCmd.Flags().StringSliceVar(&pfBrands, "brand", nil, "Preferred brand (repeatable)")
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show the shopping profile sent with chat questions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
			if err := requireAccount(ws); err != nil {
				return err
			}
			p, err := ws.LoadProfile(ctx)
			if err != nil {
				return err
			}
			if p == nil {
				fmt.Println("No profile saved.")
				return nil
			}
			return printValue(p)
		})
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace the shopping profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := shopper.Profile{UseCases: pfUseCases, PreferredBrands: pfBrands}
		if cmd.Flags().Changed("min-budget") {
			p.MinBudget = &pfMinBudget
		}
		if cmd.Flags().Changed("max-budget") {
			p.MaxBudget = &pfMaxBudget
		}

		return withSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
			if err := requireAccount(ws); err != nil {
				return err
			}
			if err := ws.SaveProfile(ctx, p); err != nil {
				return err
			}
			fmt.Println("Profile saved.")
			return nil
		})
	},
}
