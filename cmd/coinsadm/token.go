package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/service/identity"
)

const secretKeyBytesLen = 32

// Sign access token as identity provider would; for local development and smoke tests
func newTokenCommand(root *rootOptions) *cobra.Command {
	var account string
	var admin, inactive, blocked bool
	var ttl time.Duration

	type output struct {
		AccountID string    `json:"account_id"`
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue access token for the account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if root.SecretKey == "" {
				return errors.New("secret key is required, set --secret-key or SECRET_KEY")
			}

			accountID := uuid.New()
			if account != "" {
				var err error
				if accountID, err = parseAccountID(account); err != nil {
					return err
				}
			}

			verifier, err := identity.New(identity.Config{SecretKey: root.SecretKey, TTL: ttl})
			if err != nil {
				return err
			}

			id := identity.Identity{
				AccountID: accountID,
				Standing:  models.Standing{IsActive: !inactive, IsBlocked: blocked},
				Role:      identity.RoleUser,
			}
			if admin {
				id.Role = identity.RoleAdmin
			}

			token, expiresAt, err := verifier.Issue(id)
			if err != nil {
				return err
			}

			return root.print(cmd.OutOrStdout(), output{accountID.String(), token, expiresAt}, func(w io.Writer) {
				fmt.Fprintln(w, token)
			})
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Account id; random if not set")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant admin role")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Issue token of inactive account")
	cmd.Flags().BoolVar(&blocked, "blocked", false, "Issue token of blocked account")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")

	return cmd
}

func newSecretCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "secret",
		Short: "Generate random secret key",
		RunE: func(cmd *cobra.Command, args []string) error {
			b := make([]byte, secretKeyBytesLen)
			if _, err := rand.Read(b); err != nil {
				return fmt.Errorf("error while generating secret key: %w", err)
			}

			secret := hex.EncodeToString(b)
			return root.print(cmd.OutOrStdout(), map[string]string{"secret": secret}, func(w io.Writer) {
				fmt.Fprintln(w, secret)
			})
		},
	}
}
