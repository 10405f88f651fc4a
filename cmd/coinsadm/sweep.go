package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/nkiryanov/coinledger/internal/service/sweeper"
)

func newSweepCommand(root *rootOptions) *cobra.Command {
	var staleAfter time.Duration
	var batch int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Recover checkout orders stuck in a non terminal stage",
		Long: `Recover one batch of stuck orders: cancel abandoned pending ones,
release stock of never debited ones and complete debited ones.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			sw := sweeper.New(sweeper.Config{StaleAfter: staleAfter, BatchSize: batch}, s.checkout, s.logger)
			res, err := sw.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}

			return root.print(cmd.OutOrStdout(), res, func(w io.Writer) {
				if len(res) == 0 {
					fmt.Fprintln(w, "no stuck orders")
					return
				}
				for _, action := range slices.Sorted(maps.Keys(res)) {
					fmt.Fprintf(w, "%s: %d\n", action, res[action])
				}
			})
		},
	}

	cmd.Flags().DurationVar(&staleAfter, "stale-after", sweeper.DefaultStaleAfter, "Order is stuck if not updated for that long")
	cmd.Flags().IntVar(&batch, "batch", 100, "Max orders to recover")

	return cmd
}
