package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/datapkg/internal/output"
	"github.com/blackwell-systems/datapkg/internal/pkgid"
)

// AccessListCommand prints the users who can read a package.
type AccessListCommand struct {
	Package pkgid.ID
}

// AccessAddCommand grants a user read access to a package.
type AccessAddCommand struct {
	Package pkgid.ID
	User    string
}

// AccessRemoveCommand revokes a user's access to a package.
type AccessRemoveCommand struct {
	Package pkgid.ID
	User    string
}

func (*AccessListCommand) command()   {}
func (*AccessAddCommand) command()    {}
func (*AccessRemoveCommand) command() {}

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Manage who can read a package",
}

var accessListCmd = &cobra.Command{
	Use:   "list owner/pkg",
	Short: "List users with access to a package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := pkgid.Parse(args[0])
		if err != nil {
			return err
		}
		return dispatch(cmd, &AccessListCommand{Package: id})
	},
}

var accessAddCmd = &cobra.Command{
	Use:     "add owner/pkg user",
	Short:   "Grant a user access to a package",
	Example: `  datapkg access add acme/widget alice`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := pkgid.Parse(args[0])
		if err != nil {
			return err
		}
		return dispatch(cmd, &AccessAddCommand{Package: id, User: args[1]})
	},
}

var accessRemoveCmd = &cobra.Command{
	Use:     "remove owner/pkg user",
	Aliases: []string{"rm"},
	Short:   "Revoke a user's access to a package",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := pkgid.Parse(args[0])
		if err != nil {
			return err
		}
		return dispatch(cmd, &AccessRemoveCommand{Package: id, User: args[1]})
	},
}

func init() {
	accessCmd.AddCommand(accessListCmd)
	accessCmd.AddCommand(accessAddCmd)
	accessCmd.AddCommand(accessRemoveCmd)

	RootCmd.AddCommand(accessCmd)
}

func (d *Dispatcher) accessList(ctx context.Context, c *AccessListCommand) error {
	client, err := d.registry(ctx)
	if err != nil {
		return err
	}
	users, err := client.ListAccess(ctx, c.Package)
	if err != nil {
		return err
	}
	fmt.Fprint(d.out, output.RenderAccessList(users))
	return nil
}

func (d *Dispatcher) accessAdd(ctx context.Context, c *AccessAddCommand) error {
	client, err := d.registry(ctx)
	if err != nil {
		return err
	}
	if err := client.AddAccess(ctx, c.Package, c.User); err != nil {
		return err
	}
	fmt.Fprintf(d.out, "Access added for %s.\n", c.User)
	return nil
}

func (d *Dispatcher) accessRemove(ctx context.Context, c *AccessRemoveCommand) error {
	client, err := d.registry(ctx)
	if err != nil {
		return err
	}
	if err := client.RemoveAccess(ctx, c.Package, c.User); err != nil {
		return err
	}
	fmt.Fprintf(d.out, "Access removed for %s.\n", c.User)
	return nil
}
