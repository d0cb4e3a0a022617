package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/datapkg/internal/apperr"
	"github.com/blackwell-systems/datapkg/internal/output"
	"github.com/blackwell-systems/datapkg/internal/pkgid"
	"github.com/blackwell-systems/datapkg/internal/store"
)

// RemoveCommand deletes an installed package from the primary store root.
type RemoveCommand struct {
	Package pkgid.ID
	Yes     bool
}

func (*RemoveCommand) command() {}

var removeYes bool

var rmCmd = &cobra.Command{
	Use:   "rm owner/pkg",
	Short: "Remove an installed package",
	Long: `Remove a package from the local store and reclaim the space of any
artifact no other package shares. Artifacts written in the last hour are
kept until a later removal, since another install may still be using them. Packages in read-only store roots cannot
be removed.`,
	Example: `  datapkg rm acme/widget
  datapkg rm acme/widget --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := pkgid.Parse(args[0])
		if err != nil {
			return err
		}
		return dispatch(cmd, &RemoveCommand{Package: id, Yes: removeYes})
	},
}

func init() {
	rmCmd.Flags().BoolVarP(&removeYes, "yes", "y", false, "skip confirmation prompt")

	RootCmd.AddCommand(rmCmd)
}

func (d *Dispatcher) remove(c *RemoveCommand) error {
	found, err := d.packages.Resolve(c.Package, store.ModeRead)
	if err != nil {
		return err
	}
	if _, err := found.Hash(); err != nil {
		return err
	}
	if found.Root() != d.packages.Root() {
		return apperr.NewStore("%s is in read-only store %s.", c.Package, found.Root())
	}

	entry, err := d.packages.Resolve(c.Package, store.ModeWrite)
	if err != nil {
		return err
	}

	if !c.Yes && !d.confirm(fmt.Sprintf("Remove %s? [y/N]: ", c.Package)) {
		fmt.Fprintln(d.out, "Removal cancelled.")
		return nil
	}

	if err := entry.Remove(); err != nil {
		return err
	}
	freed, err := d.packages.Prune()
	if err != nil {
		d.logger.Warn("failed to reclaim unused artifacts", "error", err)
	}

	if freed > 0 {
		fmt.Fprintf(d.out, "Removed %s (%s freed).\n", c.Package, output.FormatSize(freed))
	} else {
		fmt.Fprintf(d.out, "Removed %s.\n", c.Package)
	}
	d.record(store.ActionRemove, entry)
	return nil
}
