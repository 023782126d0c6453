package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/counselchat/internal/store/sqlite"
	"github.com/vovakirdan/counselchat/internal/utils"
)

var banCodeCmd = &cobra.Command{
	Use:   "ban-code",
	Short: "Issue a single-use ban code and print it",
	RunE: func(cmd *cobra.Command, args []string) error {
		createdBy, _ := cmd.Flags().GetString("by")

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		code := utils.NewID()
		if err := st.CreateBanCode(cmd.Context(), code, createdBy); err != nil {
			return fmt.Errorf("create ban code: %w", err)
		}
		logger.Info().Str("created_by", createdBy).Msg("ban code issued")
		cmd.Println(code)
		return nil
	},
}

func init() {
	banCodeCmd.Flags().String("by", "cli", "issuer recorded with the code")
}
