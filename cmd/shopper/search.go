package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/creastat/shopper"
	"github.com/creastat/shopper/chat"
	"github.com/creastat/shopper/intent"
	"github.com/creastat/shopper/workspace"
)

var (
	// chat command flags
	chatResume bool
)

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(statsCmd)

	chatCmd.Flags().BoolVar(&chatResume, "resume", false, "Continue the stored conversation about the product")
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Review one product or compare several",
	Long: `Review one product or compare several.

Examples:
  shopper search "Kindle Paperwhite"
  shopper search "Pixel 8 vs iPhone 15"
  shopper search "compare Bose QC45, Sony XM5, AirPods Max"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		return withSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
			res, err := ws.Search(ctx, query)
			if err != nil {
				return err
			}
			if res.Intent.Mode == intent.ModeCompare {
				if !outputJSON {
					fmt.Printf("Comparing %s\n", strings.Join(res.Intent.Names, ", "))
				}
				return printJSON(res.Comparison)
			}
			if !outputJSON {
				fmt.Printf("Review of %s\n", res.Intent.Name)
			}
			return printJSON(res.Review)
		})
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat <product>",
	Short: "Ask the assistant about a product",
	Long: `Start an interactive conversation about a product. Each line read
from stdin is one question; an empty line or EOF ends the session.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		product := strings.Join(args, " ")
		return withSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
			if err := startConversation(ctx, ws, product); err != nil {
				return err
			}

			var profile *shopper.Profile
			if ws.Authority().Authenticated() {
				p, err := ws.LoadProfile(ctx)
				if err != nil {
					return err
				}
				profile = p
			}
			return converse(ctx, ws, profile)
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show backend usage counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
			stats, err := ws.Client().Stats(ctx)
			if err != nil {
				return err
			}
			return printValue(stats)
		})
	},
}

func startConversation(ctx context.Context, ws *workspace.Workspace, product string) error {
	if chatResume {
		if _, err := ws.SelectPast(ctx, product); err != nil {
			return err
		}
		for _, m := range ws.Chat().Messages() {
			printMessage(m)
		}
		return nil
	}

	res, err := ws.Search(ctx, product)
	if err != nil {
		return err
	}
	if res.Intent.Mode == intent.ModeCompare {
		return errors.New("chat needs a single product, not a comparison")
	}
	return nil
}

func converse(ctx context.Context, ws *workspace.Workspace, profile *shopper.Profile) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return nil
		}

		reply, err := ws.Ask(ctx, line, profile)
		switch {
		case errors.Is(err, chat.ErrStale):
			continue
		case errors.Is(err, chat.ErrNoProduct), ctx.Err() != nil:
			return err
		case err != nil:
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		printMessage(shopper.ChatMessage{Role: shopper.RoleAssistant, Content: reply.Content})
	}
}

func printMessage(m shopper.ChatMessage) {
	fmt.Printf("[%s] %s\n", m.Role, m.Content)
}
