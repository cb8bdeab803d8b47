package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekklesia/commhub/internal/auth"
	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/repository/postgres"
)

var (
	adminEmail    string
	adminPassword string
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create the first super admin account",
	RunE:  runCreateAdmin,
}

func init() {
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "admin email (required)")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "admin password (required)")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("password")
}

func runCreateAdmin(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := postgres.Open(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := auth.NewManager(cfg.Auth, postgres.NewUserRepo(db))
	if err != nil {
		return err
	}
	u, err := m.CreateUser(cmd.Context(), auth.RegisterInput{
		Email:    adminEmail,
		Password: adminPassword,
		Role:     domain.RoleSuperAdmin,
	})
	if errors.Is(err, auth.ErrEmailTaken) {
		fmt.Fprintf(cmd.OutOrStdout(), "user %s already exists\n", adminEmail)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created super admin %s (%s)\n", u.Email, u.ID)
	return nil
}
