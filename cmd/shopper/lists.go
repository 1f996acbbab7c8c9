package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/creastat/shopper/workspace"
)

func init() {
	rootCmd.AddCommand(shortlistCmd)
	rootCmd.AddCommand(historyCmd)
	shortlistCmd.AddCommand(shortlistAddCmd)
	shortlistCmd.AddCommand(shortlistRemoveCmd)
}

var shortlistCmd = &cobra.Command{
	Use:   "shortlist",
	Short: "Show the shortlist (requires an account)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
			if err := requireAccount(ws); err != nil {
				return err
			}
			items := ws.Shortlist().Items()
			if outputJSON {
				return printValue(items)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PRODUCT\tADDED")
			for _, e := range items {
				fmt.Fprintf(w, "%s\t%s\n", e.Name, formatTime(e.Timestamp))
			}
			return w.Flush()
		})
	},
}

var shortlistAddCmd = &cobra.Command{
	Use:   "add <product>",
	Short: "Add a product to the shortlist",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.Join(args, " ")
		return withSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
			if err := requireAccount(ws); err != nil {
				return err
			}
			added, err := ws.AddToShortlist(ctx, name)
			if err != nil {
				return err
			}
			if !added {
				fmt.Printf("%s is already on the shortlist.\n", name)
				return nil
			}
			fmt.Printf("Added %s.\n", name)
			return nil
		})
	},
}

var shortlistRemoveCmd = &cobra.Command{
	Use:   "remove <product>",
	Short: "Remove a product from the shortlist",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.Join(args, " ")
		return withSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
			if err := requireAccount(ws); err != nil {
				return err
			}
			if err := ws.RemoveFromShortlist(ctx, name); err != nil {
				return err
			}
			fmt.Printf("Removed %s.\n", name)
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently analyzed products (requires an account)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
			if err := requireAccount(ws); err != nil {
				return err
			}
			items := ws.History().Items()
			if outputJSON {
				return printValue(items)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PRODUCT\tRATING\tVIEWED")
			for _, e := range items {
				rating := "-"
				if e.Rating != nil {
					rating = *e.Rating
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, rating, formatTime(e.Timestamp))
			}
			return w.Flush()
		})
	},
}

func requireAccount(ws *workspace.Workspace) error {
	if !ws.Authority().Authenticated() {
		return fmt.Errorf("sign in first: shopper login <email>")
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
