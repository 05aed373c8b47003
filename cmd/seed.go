/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/ksb-community/apiserver/config"
	"github.com/ksb-community/apiserver/internal/db"
	"github.com/ksb-community/apiserver/internal/store"
	"github.com/ksb-community/apiserver/types"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

// seedCmd represents the seed command. It bootstraps the admin account
// from SEED_ADMIN_USERNAME and SEED_ADMIN_PASSWORD; rerunning it
// refreshes the password of an existing admin.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create or refresh the bootstrap admin account",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		if cfg.SeedAdmin.Username == "" || cfg.SeedAdmin.Password == "" {
			return errors.New("SEED_ADMIN_USERNAME and SEED_ADMIN_PASSWORD are required")
		}

		dbConn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.SeedAdmin.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password failed: %w", err)
		}

		userRepo := store.NewUserRepository(dbConn)
		ctx := cmd.Context()

		existing, err := userRepo.GetByUsername(ctx, cfg.SeedAdmin.Username)
		switch {
		case err == nil:
			if existing.Role != "admin" {
				return fmt.Errorf("user %q exists but is not an admin", existing.Username)
			}
			existing.PasswordHash = string(hashed)
			if _, err := userRepo.UpdateProfile(ctx, existing); err != nil {
				return fmt.Errorf("refresh admin failed: %w", err)
			}
			fmt.Printf("refreshed admin %q\n", existing.Username)
			return nil
		case errors.Is(err, store.ErrNotFound):
			created, err := userRepo.Create(ctx, types.User{
				Username:     cfg.SeedAdmin.Username,
				DisplayName:  cfg.SeedAdmin.Username,
				Rank:         "Aday",
				Role:         "admin",
				PasswordHash: string(hashed),
			})
			if err != nil {
				return fmt.Errorf("create admin failed: %w", err)
			}
			fmt.Printf("created admin %q (id %d)\n", created.Username, created.ID)
			return nil
		default:
			return fmt.Errorf("lookup admin failed: %w", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
