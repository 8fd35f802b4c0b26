package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	credErrors "github.com/systmms/credhub/internal/errors"
	"github.com/systmms/credhub/internal/permissions"
)

// NewResolveStoreCommand resolves a store identifier of the form
// <provider>::<resolver>::<token> to a concrete store.
func NewResolveStoreCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve-store <provider>::<resolver>::<token>",
		Short: "Resolve a store identifier to its backing store",
		Long: `Resolve a store identifier and print the store it names.

A store identifier has three parts separated by double colons: the
provider name, the context resolver name, and the resolver's token for
the context.

Examples:
  # The installation root store
  credhub resolve-store system::tree::

  # A folder store
  credhub resolve-store folder::tree::team/deploy-job

  # A user's personal store
  credhub resolve-store user::user::alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Init(); err != nil {
				return err
			}

			parts := strings.Split(args[0], "::")
			if len(parts) != 3 {
				return credErrors.UserError{
					Message:    fmt.Sprintf("malformed store identifier %q: want <provider>::<resolver>::<token>", args[0]),
					Suggestion: "credhub resolve-store system::tree::",
					Err:        credErrors.Invalidf("malformed store identifier %q", args[0]),
				}
			}
			providerName, resolverName, token := parts[0], parts[1], parts[2]

			provider, ok := app.Registry.ByName(providerName)
			if !ok {
				return credErrors.NotFoundf("no such provider %q", providerName)
			}
			resolver, ok := app.Resolvers.Get(resolverName)
			if !ok {
				return credErrors.NotFoundf("no such resolver %q", resolverName)
			}
			ctx, err := resolver.Resolve(token)
			if err != nil {
				return credErrors.NotFoundf("no such context %q", token)
			}
			if !provider.IsEnabled(ctx) {
				return credErrors.NotFoundf("no store for context %q from provider %q", ctx.FullName(), providerName)
			}
			stores, err := provider.StoresFor(ctx, permissions.System)
			if err != nil {
				return err
			}
			if len(stores) == 0 {
				return credErrors.NotFoundf("no store for context %q from provider %q", ctx.FullName(), providerName)
			}

			out := cmd.OutOrStdout()
			for _, st := range stores {
				fmt.Fprintf(out, "provider:  %s\n", providerName)
				fmt.Fprintf(out, "context:   %s\n", displayName(st.Context().FullName()))
				fmt.Fprintf(out, "scopes:    %s\n", scopeList(st.Scopes()))
				fmt.Fprintf(out, "domains:   %d\n", len(st.Domains()))
			}
			return nil
		},
	}
	return cmd
}
