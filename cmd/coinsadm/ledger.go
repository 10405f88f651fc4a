package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/service/ledger"
)

type transactionOutput struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Amount          int64          `json:"amount"`
	Status          string         `json:"status"`
	Reference       string         `json:"reference,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	PreviousBalance int64          `json:"previous_balance"`
	NewBalance      int64          `json:"new_balance"`
	FailureReason   string         `json:"failure_reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

func newTransactionOutput(t models.Transaction) transactionOutput {
	return transactionOutput{
		ID:              t.ID.String(),
		Type:            string(t.Type),
		Amount:          t.Amount,
		Status:          string(t.Status),
		Reference:       t.Reference,
		Metadata:        t.Metadata,
		PreviousBalance: t.PreviousBalance,
		NewBalance:      t.NewBalance,
		FailureReason:   t.FailureReason,
		CreatedAt:       t.CreatedAt,
	}
}

func newAdjustCommand(root *rootOptions) *cobra.Command {
	var account, typ, reason, reference string
	var amount int64

	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Change account balance manually",
		Long: `Record admin adjustment, fraud penalty or refund on the account.

Examples:
  coinsadm adjust --account 0b6c... --amount 100 --reason "support ticket 812"
  coinsadm adjust --account 0b6c... --type fraud_penalty --amount -50 --reason "vote farming"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := parseAccountID(account)
			if err != nil {
				return err
			}
			if reason == "" {
				return errors.New("--reason is required")
			}

			p := ledger.RecordParams{
				AccountID: accountID,
				Type:      models.TransactionType(typ),
				Amount:    amount,
				Reference: reference,
				Metadata:  map[string]any{"reason": reason, "operator": "coinsadm"},
			}
			if err := ledger.ValidateAdjustment(p); err != nil {
				return err
			}

			s, err := root.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			t, err := s.ledger.Record(cmd.Context(), p)
			if err != nil {
				return err
			}

			return root.print(cmd.OutOrStdout(), newTransactionOutput(t), func(w io.Writer) {
				fmt.Fprintf(w, "%s %+d: balance %d -> %d (transaction %s)\n", t.Type, t.Amount, t.PreviousBalance, t.NewBalance, t.ID)
			})
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Account id")
	cmd.Flags().StringVar(&typ, "type", string(models.TransactionAdminAdjustment), "Transaction type (admin_adjustment, fraud_penalty, refund)")
	cmd.Flags().Int64Var(&amount, "amount", 0, "Signed amount of coins")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the balance is changed")
	cmd.Flags().StringVar(&reference, "reference", "", "Optional external reference (ticket, order id)")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func newBalanceCommand(root *rootOptions) *cobra.Command {
	var account string

	type output struct {
		AccountID      string `json:"account_id"`
		Balance        int64  `json:"balance"`
		TotalRewarded  int64  `json:"total_rewarded"`
		RewardsClaimed int    `json:"rewards_claimed"`
		ReferralCode   string `json:"referral_code"`
		ReferralCount  int    `json:"referral_count"`
		Active         bool   `json:"active"`
		Blocked        bool   `json:"blocked"`
	}

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show account balance and counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := parseAccountID(account)
			if err != nil {
				return err
			}

			s, err := root.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			a, err := s.ledger.GetAccount(cmd.Context(), accountID)
			if err != nil {
				return err
			}

			out := output{
				AccountID:      a.ID.String(),
				Balance:        a.Balance,
				TotalRewarded:  a.TotalRewarded,
				RewardsClaimed: a.RewardsClaimed,
				ReferralCode:   a.ReferralCode,
				ReferralCount:  a.ReferralCount,
				Active:         a.IsActive,
				Blocked:        a.IsBlocked,
			}
			return root.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				fmt.Fprintf(w, "balance: %d\nrewarded: %d in %d claims\nreferral code: %s (%d referrals)\nactive: %t, blocked: %t\n",
					a.Balance, a.TotalRewarded, a.RewardsClaimed, a.ReferralCode, a.ReferralCount, a.IsActive, a.IsBlocked)
			})
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Account id")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func newHistoryCommand(root *rootOptions) *cobra.Command {
	var account string
	var limit, skip int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List account transactions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := parseAccountID(account)
			if err != nil {
				return err
			}

			s, err := root.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			history, err := s.ledger.GetHistory(cmd.Context(), accountID, limit, skip)
			if err != nil {
				return err
			}

			out := make([]transactionOutput, 0, len(history))
			for _, t := range history {
				out = append(out, newTransactionOutput(t))
			}
			return root.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CREATED\tTYPE\tAMOUNT\tSTATUS\tBALANCE\tREFERENCE")
				for _, t := range history {
					fmt.Fprintf(tw, "%s\t%s\t%+d\t%s\t%d\t%s\n",
						t.CreatedAt.Format(time.RFC3339), t.Type, t.Amount, t.Status, t.NewBalance, t.Reference)
				}
				_ = tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Account id")
	cmd.Flags().IntVar(&limit, "limit", ledger.DefaultHistoryLimit, "Max transactions to show")
	cmd.Flags().IntVar(&skip, "skip", 0, "Transactions to skip")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func newReconcileCommand(root *rootOptions) *cobra.Command {
	var account string
	var limit int

	type output struct {
		AccountID  string `json:"account_id"`
		Balance    int64  `json:"balance"`
		LedgerSum  int64  `json:"ledger_sum"`
		EntryCount int    `json:"entry_count"`
		Balanced   bool   `json:"balanced"`
	}
	toOutput := func(r models.Reconciliation) output {
		return output{r.AccountID.String(), r.Balance, r.LedgerSum, r.EntryCount, r.Balanced()}
	}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare balances with ledger sums",
		Long: `Compare stored balance with the sum of completed transactions.

With --account checks one account, otherwise lists every mismatched account.
Exits with error if any mismatch is found.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			w := cmd.OutOrStdout()

			if account != "" {
				accountID, err := parseAccountID(account)
				if err != nil {
					return err
				}

				rec, recErr := s.ledger.Reconcile(cmd.Context(), accountID)
				if recErr != nil && !errors.Is(recErr, apperrors.ErrLedgerMismatch) {
					return recErr
				}
				if err := root.print(w, toOutput(rec), func(w io.Writer) {
					fmt.Fprintf(w, "balance %d, ledger sum %d over %d transactions, balanced: %t\n",
						rec.Balance, rec.LedgerSum, rec.EntryCount, rec.Balanced())
				}); err != nil {
					return err
				}
				return recErr
			}

			mismatches, err := s.ledger.ListMismatches(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := make([]output, 0, len(mismatches))
			for _, r := range mismatches {
				out = append(out, toOutput(r))
			}
			err = root.print(w, out, func(w io.Writer) {
				if len(mismatches) == 0 {
					fmt.Fprintln(w, "every balance matches its ledger")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ACCOUNT\tBALANCE\tLEDGER SUM\tENTRIES")
				for _, r := range mismatches {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", r.AccountID, r.Balance, r.LedgerSum, r.EntryCount)
				}
				_ = tw.Flush()
			})
			if err != nil {
				return err
			}

			if len(mismatches) > 0 {
				return fmt.Errorf("%w: %d accounts", apperrors.ErrLedgerMismatch, len(mismatches))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Account id; all accounts if not set")
	cmd.Flags().IntVar(&limit, "limit", ledger.MaxHistoryLimit, "Max mismatched accounts to list")

	return cmd
}
