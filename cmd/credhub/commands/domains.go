package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	credErrors "github.com/systmms/credhub/internal/errors"
	"github.com/systmms/credhub/pkg/domain"
)

// NewDomainsCommand manages the domains of one store.
func NewDomainsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domains",
		Short: "List, add and remove a store's domains",
	}
	cmd.AddCommand(
		newDomainsListCommand(app),
		newDomainsAddCommand(app),
		newDomainsRemoveCommand(app),
	)
	return cmd
}

func newDomainsListCommand(app *App) *cobra.Command {
	var context string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the domains of a store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Init(); err != nil {
				return err
			}
			ctx, err := app.contextFlag(context)
			if err != nil {
				return err
			}
			st, err := app.Source.For(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, d := range st.Domains() {
				name := d.Name()
				if d.IsGlobal() {
					name = "(global)"
				}
				fmt.Fprintf(out, "%-24s %2d credentials", name, len(st.Credentials(d)))
				if desc := d.Description(); desc != "" {
					fmt.Fprintf(out, "  %s", desc)
				}
				fmt.Fprintln(out)
				for _, spec := range d.Specs() {
					fmt.Fprintf(out, "  %-8s %v\n", spec.Kind(), spec.Params())
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&context, "context", "", "Context full name; empty means the root")
	return cmd
}

func newDomainsAddCommand(app *App) *cobra.Command {
	var (
		context     string
		user        string
		name        string
		description string

		hostnames        string
		excludeHostnames string
		schemes          string
		paths            string
		uris             string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a domain to a store",
		Long: `Add a named domain with optional specifications. Each specification
flag takes a whitespace or comma separated list; a hostname entry may
use "*" wildcards per dotted segment and an optional ":port" suffix.

Examples:
  credhub domains add --name production --hostnames "*.prod.example.com"
  credhub domains add --name internal-api --schemes https --paths /api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Init(); err != nil {
				return err
			}
			ctx, err := app.contextFlag(context)
			if err != nil {
				return err
			}
			st, err := app.Source.For(ctx)
			if err != nil {
				return err
			}

			var specs []domain.Specification
			if hostnames != "" || excludeHostnames != "" {
				spec, err := domain.NewHostnameSpecification(hostnames, excludeHostnames)
				if err != nil {
					return err
				}
				specs = append(specs, spec)
			}
			if schemes != "" {
				spec, err := domain.NewSchemeSpecification(schemes)
				if err != nil {
					return err
				}
				specs = append(specs, spec)
			}
			if paths != "" {
				spec, err := domain.NewPathSpecification(paths)
				if err != nil {
					return err
				}
				specs = append(specs, spec)
			}
			if uris != "" {
				spec, err := domain.NewURISpecification(uris)
				if err != nil {
					return err
				}
				specs = append(specs, spec)
			}

			d, err := domain.New(name, description, specs...)
			if err != nil {
				return err
			}
			added, err := st.AddDomainAs(principalFlag(user), d)
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintf(cmd.OutOrStdout(), "domain %s already present\n", name)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added domain %s\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&context, "context", "", "Context full name; empty means the root")
	cmd.Flags().StringVar(&user, "user", "", "Acting user; empty acts as SYSTEM")
	cmd.Flags().StringVar(&name, "name", "", "Domain name (required)")
	cmd.Flags().StringVar(&description, "description", "", "Human-readable description")
	cmd.Flags().StringVar(&hostnames, "hostnames", "", "Hostname include list")
	cmd.Flags().StringVar(&excludeHostnames, "exclude-hostnames", "", "Hostname exclude list")
	cmd.Flags().StringVar(&schemes, "schemes", "", "Scheme one-of list")
	cmd.Flags().StringVar(&paths, "paths", "", "Path prefix list")
	cmd.Flags().StringVar(&uris, "uris", "", "URI glob list")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newDomainsRemoveCommand(app *App) *cobra.Command {
	var (
		context string
		user    string
		name    string
	)

	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Remove a domain and its credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Init(); err != nil {
				return err
			}
			ctx, err := app.contextFlag(context)
			if err != nil {
				return err
			}
			st, err := app.Source.For(ctx)
			if err != nil {
				return err
			}
			d, ok := st.DomainByName(name)
			if !ok {
				return credErrors.NotFoundf("no such domain %q", name)
			}
			if _, err := st.RemoveDomainAs(principalFlag(user), d); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed domain %s\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&context, "context", "", "Context full name; empty means the root")
	cmd.Flags().StringVar(&user, "user", "", "Acting user; empty acts as SYSTEM")
	cmd.Flags().StringVar(&name, "name", "", "Domain name (required)")
	cmd.MarkFlagRequired("name")
	return cmd
}
