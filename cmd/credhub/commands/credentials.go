package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	credErrors "github.com/systmms/credhub/internal/errors"
	"github.com/systmms/credhub/pkg/credentials"
)

// NewCredentialsCommand manages the credentials of one store.
func NewCredentialsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "List, add and remove credentials in a store",
	}
	cmd.AddCommand(
		newCredentialsListCommand(app),
		newCredentialsAddCommand(app),
		newCredentialsRemoveCommand(app),
	)
	return cmd
}

func newCredentialsListCommand(app *App) *cobra.Command {
	var (
		context    string
		domainName string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the credentials of a store",
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
				if cmd.Flags().Changed("domain") && d.Name() != domainName {
					continue
				}
				name := d.Name()
				if d.IsGlobal() {
					name = "(global)"
				}
				fmt.Fprintf(out, "domain %s\n", name)
				creds := st.Credentials(d)
				if len(creds) == 0 {
					fmt.Fprintln(out, "  (empty)")
					continue
				}
				for _, c := range creds {
					fmt.Fprintf(out, "  %-28s %-18s %-7s %s\n", c.ID(), c.TypeTag(), c.Scope(), c.Description())
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&context, "context", "", "Context full name; empty means the root")
	cmd.Flags().StringVar(&domainName, "domain", "", "Only this domain; empty string names the global domain")
	return cmd
}

func newCredentialsAddCommand(app *App) *cobra.Command {
	var (
		context     string
		domainName  string
		user        string
		typeTag     string
		id          string
		description string
		scopeName   string

		username       string
		password       string
		usernameSecret bool
		secretText     string
		filePath       string
		fileName       string
		keyFile        string
		passphrase     string
		keystoreFile   string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a credential to a store",
		Long: `Add a typed credential to a store's domain. Secret material is
encrypted before it touches disk.

Examples:
  credhub credentials add --type secretText --id api-token --secret hunter2
  credhub credentials add --type usernamePassword --context team/deploy-job \
      --domain production --id deploy --username robot --password s3cret
  credhub credentials add --type sshPrivateKey --id bastion \
      --username ops --key-file ~/.ssh/id_ed25519`,
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
			d, err := domainFor(st, domainName)
			if err != nil {
				return err
			}
			scope, err := credentials.ParseScope(scopeName)
			if err != nil {
				return err
			}
			if !st.Scopes().Contains(scope) {
				return credErrors.Invalidf("store for context %q does not accept scope %s",
					displayName(ctx.FullName()), scope)
			}

			var c credentials.Credential
			switch typeTag {
			case credentials.TypeUsernamePassword:
				c, err = app.Factory.NewUsernamePassword(scope, id, description, username, password, usernameSecret)
			case credentials.TypeSecretText:
				c, err = app.Factory.NewSecretText(scope, id, description, secretText)
			case credentials.TypeSecretFile:
				var content []byte
				content, err = os.ReadFile(filePath)
				if err != nil {
					return credErrors.Wrap(credErrors.IO, err, "reading %s", filePath)
				}
				name := fileName
				if name == "" {
					name = filepath.Base(filePath)
				}
				c, err = app.Factory.NewSecretFile(scope, id, description, name, content)
			case credentials.TypeSSHPrivateKey:
				var key []byte
				key, err = os.ReadFile(keyFile)
				if err != nil {
					return credErrors.Wrap(credErrors.IO, err, "reading %s", keyFile)
				}
				c, err = app.Factory.NewSSHPrivateKey(scope, id, description, username, string(key), passphrase)
			case credentials.TypeCertificate:
				var keystore []byte
				keystore, err = os.ReadFile(keystoreFile)
				if err != nil {
					return credErrors.Wrap(credErrors.IO, err, "reading %s", keystoreFile)
				}
				c, err = app.Factory.NewCertificate(scope, id, description, keystore, password)
			default:
				return credErrors.UserError{
					Message:    fmt.Sprintf("unknown credential type %q", typeTag),
					Suggestion: "one of: " + strings.Join(credentials.KnownTypes(), ", "),
					Err:        credErrors.Invalidf("unknown credential type %q", typeTag),
				}
			}
			if err != nil {
				return err
			}

			added, err := st.AddCredentialsAs(principalFlag(user), d, c)
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintf(cmd.OutOrStdout(), "credential %s already present\n", c.ID())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", c.ID())
			return nil
		},
	}

	cmd.Flags().StringVar(&context, "context", "", "Context full name; empty means the root")
	cmd.Flags().StringVar(&domainName, "domain", "", "Domain name; empty names the global domain")
	cmd.Flags().StringVar(&user, "user", "", "Acting user; empty acts as SYSTEM")
	cmd.Flags().StringVar(&typeTag, "type", "", "Credential type tag (required)")
	cmd.Flags().StringVar(&id, "id", "", "Credential id; empty generates one")
	cmd.Flags().StringVar(&description, "description", "", "Human-readable description")
	cmd.Flags().StringVar(&scopeName, "scope", "GLOBAL", "Credential scope: SYSTEM, GLOBAL or USER")

	cmd.Flags().StringVar(&username, "username", "", "Username (usernamePassword, sshPrivateKey)")
	cmd.Flags().StringVar(&password, "password", "", "Password (usernamePassword, certificate)")
	cmd.Flags().BoolVar(&usernameSecret, "username-secret", false, "Treat the username as secret")
	cmd.Flags().StringVar(&secretText, "secret", "", "Secret text (secretText)")
	cmd.Flags().StringVar(&filePath, "file", "", "File to store (secretFile)")
	cmd.Flags().StringVar(&fileName, "file-name", "", "Stored file name; defaults to the file's base name")
	cmd.Flags().StringVar(&keyFile, "key-file", "", "Private key file (sshPrivateKey)")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "Key passphrase (sshPrivateKey)")
	cmd.Flags().StringVar(&keystoreFile, "keystore-file", "", "Keystore file (certificate)")
	cmd.MarkFlagRequired("type")

	return cmd
}

func newCredentialsRemoveCommand(app *App) *cobra.Command {
	var (
		context    string
		domainName string
		user       string
		id         string
	)

	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Remove a credential from a store",
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
			d, err := domainFor(st, domainName)
			if err != nil {
				return err
			}
			var target credentials.Credential
			for _, c := range st.Credentials(d) {
				if c.ID() == id {
					target = c
					break
				}
			}
			if target == nil {
				return credErrors.NotFoundf("no credential %q in domain %q", id, domainName)
			}
			if _, err := st.RemoveCredentialsAs(principalFlag(user), d, target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&context, "context", "", "Context full name; empty means the root")
	cmd.Flags().StringVar(&domainName, "domain", "", "Domain name; empty names the global domain")
	cmd.Flags().StringVar(&user, "user", "", "Acting user; empty acts as SYSTEM")
	cmd.Flags().StringVar(&id, "id", "", "Credential id (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}
