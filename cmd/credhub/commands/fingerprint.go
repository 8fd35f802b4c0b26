package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	credErrors "github.com/systmms/credhub/internal/errors"
	"github.com/systmms/credhub/internal/fingerprint"
)

// NewFingerprintCommand inspects the credential usage ledger.
func NewFingerprintCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Inspect the credential usage ledger",
	}
	cmd.AddCommand(
		newFingerprintListCommand(app),
		newFingerprintShowCommand(app),
	)
	return cmd
}

func newFingerprintListCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every tracked credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Init(); err != nil {
				return err
			}
			records := app.Ledger.Snapshot()
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "no fingerprints recorded")
				return nil
			}
			for _, r := range records {
				fmt.Fprintf(out, "%s  %s\n", r.Hash, r.Describe())
			}
			return nil
		},
	}
	return cmd
}

func newFingerprintShowCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <hash-or-id>",
		Short: "Show one credential's usage record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Init(); err != nil {
				return err
			}
			key := args[0]
			record, err := app.Ledger.Get(key)
			if err != nil {
				// Fall back to matching by credential id.
				record, err = recordByID(app.Ledger, key)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "hash:       %s\n", record.Hash)
			fmt.Fprintf(out, "id:         %s\n", record.ID)
			fmt.Fprintf(out, "type:       %s\n", record.Type)
			fmt.Fprintf(out, "first seen: %s\n", record.FirstSeen.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "last seen:  %s\n", record.LastSeen.Format("2006-01-02 15:04:05"))
			for _, run := range record.Runs {
				fmt.Fprintf(out, "run:        %s #%s (%s .. %s)\n",
					run.Job, run.RunID,
					run.FirstUse.Format("2006-01-02 15:04:05"),
					run.LastUse.Format("2006-01-02 15:04:05"))
			}
			for _, item := range record.Items {
				fmt.Fprintf(out, "item:       %s\n", item.Item)
			}
			for _, node := range record.Nodes {
				fmt.Fprintf(out, "node:       %s\n", node.Node)
			}
			return nil
		},
	}
	return cmd
}

func recordByID(ledger *fingerprint.Ledger, id string) (fingerprint.Record, error) {
	for _, r := range ledger.Snapshot() {
		if r.ID == id {
			return r, nil
		}
	}
	return fingerprint.Record{}, credErrors.NotFoundf("no fingerprint for %q", id)
}
