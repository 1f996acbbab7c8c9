package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/creastat/shopper"
	"github.com/creastat/shopper/workspace"
)

var (
	// account command flags
	accPassword string
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)

	for _, cmd := range []*cobra.Command{loginCmd, registerCmd} {
		cmd.Flags().StringVar(&accPassword, "password", "", "Password (read from stdin when empty)")
	}
}

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Sign in to an existing account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return authenticate(cmd, args[0], (*workspace.Workspace).Login)
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <email>",
	Short: "Create an account and sign in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return authenticate(cmd, args[0], (*workspace.Workspace).Register)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored credential",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
			if err := ws.Logout(ctx); err != nil {
				return err
			}
			fmt.Println("Signed out.")
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
			anonID, err := ws.AnonymousID(ctx)
			if err != nil {
				return err
			}
			user := ws.Authority().User()
			if outputJSON {
				return printValue(map[string]any{
					"state":        ws.Authority().State(),
					"user":         user,
					"anonymous_id": anonID,
				})
			}
			if user == nil {
				fmt.Printf("Anonymous (%s)\n", anonID)
				return nil
			}
			fmt.Printf("%s (user %d)\n", user.Email, user.ID)
			return nil
		})
	},
}

type authFunc func(*workspace.Workspace, context.Context, string, string) (shopper.User, error)

func authenticate(cmd *cobra.Command, email string, fn authFunc) error {
	password := accPassword
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	return withSession(cmd, func(ctx context.Context, ws *workspace.Workspace) error {
		user, err := fn(ws, ctx, email, password)
		if err != nil {
			return err
		}
		fmt.Printf("Signed in as %s.\n", user.Email)
		return nil
	})
}
