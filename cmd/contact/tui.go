package main

import (
	"github.com/spf13/cobra"

	"github.com/nazarhussain/contact-courier/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive contact form",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		return tui.Run(cmd.Context(), tui.Options{
			Validator:    a.validator,
			Ledger:       a.ledger,
			Remote:       a.remote,
			Meta:         a.meta,
			Submit:       a.submitConfig(),
			Logger:       a.logger,
			Guard:        a.guard,
			Settle:       a.cfg.ModalSettle,
			CaptchaToken: a.cfg.CaptchaToken,
		})
	},
}
