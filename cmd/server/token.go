package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/koopa0/durak/internal/auth"
)

// newTokenCmd 簽發本地測試用的 token
func newTokenCmd() *cobra.Command {
	var subject, name string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			v := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
			if !v.Enabled() {
				return errors.New("auth.jwt_secret (or JWT_SECRET) is required")
			}
			token, err := v.Issue(subject, name)
			if err != nil {
				return err
			}
			cmd.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "subject id")
	cmd.Flags().StringVar(&name, "name", "", "username")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}
