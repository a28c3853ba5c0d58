/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/linklite/apiserver/internal/db"
	"github.com/linklite/apiserver/internal/server"
	"github.com/linklite/apiserver/internal/services"
	"github.com/linklite/apiserver/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const demoPassword = "demo123"

var demoAccounts = []services.RegisterRequest{
	{
		Name:   "Swarit",
		Email:  "swarit@example.com",
		Bio:    strPtr("Founder of SwaritTech - Innovating in the AI space."),
		Avatar: strPtr("https://api.dicebear.com/7.x/avataaars/svg?seed=Swarit"),
	},
	{
		Name:   "Rutuja",
		Email:  "rutuja@example.com",
		Bio:    strPtr("Experienced Full Stack Developer, specializing in Node.js and React."),
		Avatar: strPtr("https://api.dicebear.com/7.x/avataaars/svg?seed=Rutuja"),
	},
	{
		Name:   "Shravani",
		Email:  "shravani@example.com",
		Bio:    strPtr("UI/UX Designer with a passion for creating beautiful user experiences."),
		Avatar: strPtr("https://api.dicebear.com/7.x/avataaars/svg?seed=Shravani"),
	},
}

type registrar interface {
	Register(ctx context.Context, req services.RegisterRequest) (services.AuthResult, error)
}

// seedCmd represents the seed command
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the demo accounts",
	Long: `Registers the demo accounts (password "demo123"). Accounts that
already exist are left untouched. Usage:

	linklite seed
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx := cmd.Context()
		dbConn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		queue, events, err := server.ConnectEvents(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if queue != nil {
			defer queue.Close()
		}

		deps, err := server.NewDependencies(cfg, store.NewUserRepository(dbConn), events, logger)
		if err != nil {
			return err
		}

		created, err := seedAccounts(ctx, deps.Auth, logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d account(s)\n", created)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// seedAccounts registers every demo account and returns how many were new.
func seedAccounts(ctx context.Context, reg registrar, logger *zap.Logger) (int, error) {
	created := 0
	for _, account := range demoAccounts {
		account.Password = demoPassword
		if _, err := reg.Register(ctx, account); err != nil {
			if errors.Is(err, services.ErrConflict) {
				logger.Info("demo account exists", zap.String("email", account.Email))
				continue
			}
			return created, fmt.Errorf("seed %s: %w", account.Email, err)
		}
		logger.Info("demo account created", zap.String("email", account.Email))
		created++
	}
	return created, nil
}

func strPtr(s string) *string {
	return &s
}
