package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/counselchat/internal/auth"
	"github.com/vovakirdan/counselchat/internal/store"
	"github.com/vovakirdan/counselchat/internal/store/sqlite"
)

var counselorCmd = &cobra.Command{
	Use:   "counselor",
	Short: "Manage counselor accounts",
}

var counselorAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a counselor account",
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		canBan, _ := cmd.Flags().GetBool("can-ban")
		if username == "" || password == "" {
			return errors.New("username and password are required")
		}

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		c, err := st.CreateCounselor(cmd.Context(), &store.Counselor{
			Username:           username,
			PasswordHash:       hash,
			CanGenerateBanCode: canBan,
		})
		if err != nil {
			return fmt.Errorf("create counselor: %w", err)
		}

		logger.Info().Int64("id", c.ID).Str("username", c.Username).Msg("counselor created")
		return nil
	},
}

func init() {
	counselorAddCmd.Flags().String("username", "", "login name")
	counselorAddCmd.Flags().String("password", "", "login password")
	counselorAddCmd.Flags().Bool("can-ban", false, "allow generating ban codes")
	counselorCmd.AddCommand(counselorAddCmd)
}
