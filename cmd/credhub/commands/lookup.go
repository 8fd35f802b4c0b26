package commands

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/systmms/credhub/internal/resolve"
	"github.com/systmms/credhub/pkg/credentials"
	"github.com/systmms/credhub/pkg/domain"
)

// NewLookupCommand resolves credentials visible at a context.
func NewLookupCommand(app *App) *cobra.Command {
	var (
		typeTag  string
		context  string
		user     string
		hostname string
		scheme   string
		path     string
		uri      string
		target   string
		id       string
	)

	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Resolve credentials visible at a context",
		Long: `Resolve the credentials of one type visible at a context, nearest
scope first. Requirement flags narrow the result to domains whose
specifications they satisfy; --target derives scheme, hostname and path
requirements from a full URI in one go.

Secret fields are always printed redacted.

Examples:
  credhub lookup --type secretText
  credhub lookup --type usernamePassword --context team/deploy-job --hostname db.example.com
  credhub lookup --type sshPrivateKey --user alice --target ssh://bastion.example.com:22`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Init(); err != nil {
				return err
			}

			at, err := app.contextFlag(context)
			if err != nil {
				return err
			}
			reqs := requirementFlags(hostname, scheme, path, uri)
			if target != "" {
				reqs = append(reqs, domain.RequirementsFromURI(target)...)
			}
			var matcher credentials.Matcher
			if id != "" {
				matcher = credentials.ByID(id)
			}

			found, err := app.Engine.Lookup(cmd.Context(), resolve.Query{
				Type:         typeTag,
				Context:      at,
				Principal:    principalFlag(user),
				Requirements: reqs,
				Matcher:      matcher,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(found) == 0 {
				fmt.Fprintln(out, "no credentials found")
				return nil
			}
			for i, c := range found {
				if i > 0 {
					fmt.Fprintln(out)
				}
				printSnapshot(out, c)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&typeTag, "type", "", "Credential type tag (required)")
	cmd.Flags().StringVar(&context, "context", "", "Context full name; empty means the root")
	cmd.Flags().StringVar(&user, "user", "", "Acting user; empty acts as SYSTEM")
	cmd.Flags().StringVar(&hostname, "hostname", "", "Hostname requirement")
	cmd.Flags().StringVar(&scheme, "scheme", "", "Scheme requirement")
	cmd.Flags().StringVar(&path, "path", "", "Path requirement")
	cmd.Flags().StringVar(&uri, "uri", "", "URI requirement")
	cmd.Flags().StringVar(&target, "target", "", "Target URI; expands into scheme, hostname and path requirements")
	cmd.Flags().StringVar(&id, "id", "", "Restrict to one credential id")
	cmd.MarkFlagRequired("type")

	return cmd
}

// printSnapshot renders the redacted field map, metadata first.
func printSnapshot(out io.Writer, c credentials.Credential) {
	snap := c.Snapshot()
	lead := []string{"id", "type", "scope", "description"}
	for _, key := range lead {
		fmt.Fprintf(out, "%-12s %s\n", key+":", snap[key])
		delete(snap, key)
	}
	rest := make([]string, 0, len(snap))
	for key := range snap {
		rest = append(rest, key)
	}
	sort.Strings(rest)
	for _, key := range rest {
		fmt.Fprintf(out, "%-12s %s\n", key+":", snap[key])
	}
}
