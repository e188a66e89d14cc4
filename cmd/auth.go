package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/caleb/fittrack/internal/config"
	"github.com/caleb/fittrack/internal/models"
	"github.com/caleb/fittrack/internal/output"
	"github.com/caleb/fittrack/internal/remote"
)

var authCmd = &cobra.Command{
	Use:     "auth",
	Short:   "Manage sync authentication",
	GroupID: "system",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the sync server",
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL := config.GetSyncURL()
		reader := bufio.NewReader(os.Stdin)

		fmt.Print("Email: ")
		email, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read email: %w", err)
		}
		email = strings.TrimSpace(email)

		fmt.Print("Account ID: ")
		account, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read account: %w", err)
		}
		account = strings.TrimSpace(account)
		if account == "" {
			return fmt.Errorf("account id required")
		}

		fmt.Print("API key: ")
		keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read api key: %w", err)
		}
		apiKey := strings.TrimSpace(string(keyBytes))
		if apiKey == "" {
			return fmt.Errorf("api key required")
		}

		// Verify the key before saving
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		client := remote.NewClient(serverURL, apiKey)
		if _, err := client.List(ctx, models.KindProfile, account); err != nil {
			if errors.Is(err, remote.ErrAuthRequired) {
				output.Error("server rejected the api key")
				return err
			}
			if remote.IsTransient(err) {
				output.Warning("could not reach %s to verify key, saving anyway", serverURL)
			} else {
				output.Error("verify credentials: %v", err)
				return err
			}
		}

		creds := &config.AuthCredentials{
			APIKey:    apiKey,
			AccountID: account,
			Email:     email,
			ServerURL: serverURL,
		}
		if err := config.SaveAuth(creds); err != nil {
			output.Error("save credentials: %v", err)
			return err
		}

		output.Success("Logged in as %s", account)
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out from the sync server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ClearAuth(); err != nil {
			output.Error("logout: %v", err)
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := config.LoadAuth()
		if err != nil {
			output.Error("load auth: %v", err)
			return err
		}

		if creds == nil || creds.APIKey == "" {
			fmt.Println("Not logged in.")
			return nil
		}

		keyPrefix := creds.APIKey
		if len(keyPrefix) > 12 {
			keyPrefix = keyPrefix[:12] + "..."
		}

		fmt.Printf("Account: %s\n", creds.AccountID)
		if creds.Email != "" {
			fmt.Printf("Email:   %s\n", creds.Email)
		}
		fmt.Printf("Server:  %s\n", creds.ServerURL)
		fmt.Printf("Key:     %s\n", keyPrefix)
		return nil
	},
}

func init() {
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}
