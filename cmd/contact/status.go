package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nazarhussain/contact-courier/internal/ledger"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent sends and any active quarantine",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		s := a.ledger.Snapshot()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ledger:       %s\n", a.store.Path())
		fmt.Fprintf(out, "recent sends: %d in the last %s\n", s.RecentSends, ledger.DefaultWindow)
		for _, t := range s.Sends {
			fmt.Fprintf(out, "  %s\n", t.Local().Format(time.DateTime))
		}
		if s.Quarantined {
			fmt.Fprintf(out, "quarantined:  yes, %d minute(s) left (until %s)\n", s.MinutesLeft, s.Until.Local().Format(time.DateTime))
		} else {
			fmt.Fprintln(out, "quarantined:  no")
		}
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget recorded sends and lift the quarantine",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ledger.Reset(); err != nil {
			return fmt.Errorf("reset ledger: %w", err)
		}
		a.logger.Info("ledger reset", "path", a.store.Path())
		fmt.Fprintln(cmd.OutOrStdout(), "ledger cleared")
		return nil
	},
}
