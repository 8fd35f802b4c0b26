package commands

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	credErrors "github.com/systmms/credhub/internal/errors"
	"github.com/systmms/credhub/internal/secret"
)

// NewRedactCommand replaces serialised secrets in a document with the
// redaction token.
func NewRedactCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redact [file]",
		Short: "Redact serialised secrets from a document",
		Long: `Read a document, replace every serialised secret token with the
redaction token, and write the result to stdout. With no argument the
document is read from stdin.

Safe to run on any text; content that carries no secret tokens passes
through unchanged, and the output is stable under repeated runs.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				doc []byte
				err error
			)
			if len(args) == 1 {
				doc, err = os.ReadFile(args[0])
				if err != nil {
					return credErrors.Wrap(credErrors.IO, err, "reading %s", args[0])
				}
			} else {
				doc, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return credErrors.Wrap(credErrors.IO, err, "reading stdin")
				}
			}

			_, err = cmd.OutOrStdout().Write(secret.NewRedactors().RedactDocument(doc))
			return err
		},
	}
	return cmd
}
