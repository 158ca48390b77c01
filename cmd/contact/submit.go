package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nazarhussain/contact-courier/internal/captcha"
	"github.com/nazarhussain/contact-courier/internal/modal"
	"github.com/nazarhussain/contact-courier/internal/submit"
)

var submitFlags struct {
	name        string
	email       string
	message     string
	messageFile string
	token       string
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Send one message without the interactive form",
	Long: `Send one message with the values given as flags. The captcha token must
come from the widget on the page (or CONTACT_CAPTCHA_TOKEN).

Example:
  contact submit --name "سارا احمدی" --email sara@example.com --message-file note.txt --token "$TOKEN"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		message := submitFlags.message
		if submitFlags.messageFile != "" {
			if message, err = readMessage(cmd.InOrStdin(), submitFlags.messageFile); err != nil {
				return err
			}
		}
		token := submitFlags.token
		if token == "" {
			token = a.cfg.CaptchaToken
		}

		out := cmd.OutOrStdout()
		form := &consoleForm{
			values: submit.Values{Name: submitFlags.name, Email: submitFlags.email, Message: message},
			out:    cmd.ErrOrStderr(),
		}
		presenter := modal.New(consoleDialog{out: out}, modal.WithSettle(0), modal.WithLogger(a.logger))

		orch, err := submit.New(submit.Deps{
			Form:      form,
			Control:   newSpinnerControl(cmd.ErrOrStderr()),
			Widget:    captcha.NewStatic(token),
			Validator: a.validator,
			Ledger:    a.ledger,
			Remote:    a.remote,
			Modal:     presenter,
			Meta:      a.meta,
			Logger:    a.logger,
		}, a.submitConfig())
		if err != nil {
			return err
		}

		res := orch.Submit(cmd.Context())
		// acknowledge the dialog so its continuation runs before exit
		<-presenter.Close()

		if res.Kind != submit.Success {
			return fmt.Errorf("message not sent: %s", res.Kind)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "submission %s\n", res.SubmissionID)
		return nil
	},
}

func readMessage(stdin io.Reader, path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read message: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

func init() {
	f := submitCmd.Flags()
	f.StringVar(&submitFlags.name, "name", "", "sender name (Persian letters)")
	f.StringVar(&submitFlags.email, "email", "", "reply address")
	f.StringVar(&submitFlags.message, "message", "", "message text")
	f.StringVar(&submitFlags.messageFile, "message-file", "", "read the message from a file, - for stdin")
	f.StringVar(&submitFlags.token, "token", "", "captcha response token")
	submitCmd.MarkFlagsMutuallyExclusive("message", "message-file")
}
