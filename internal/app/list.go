package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/datapkg/internal/apperr"
	"github.com/blackwell-systems/datapkg/internal/output"
	"github.com/blackwell-systems/datapkg/internal/pkgid"
	"github.com/blackwell-systems/datapkg/internal/store"
)

// ListCommand prints installed packages grouped by store root.
type ListCommand struct{}

// HistoryCommand prints recorded events, optionally for one package.
type HistoryCommand struct {
	Package *pkgid.ID
	Limit   int
}

func (*ListCommand) command()    {}
func (*HistoryCommand) command() {}

var lsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List installed packages",
	Long: `List installed packages in every store root, with their size, content
hash and last update. Read-only roots from DATAPKG_STORE_PATH are listed
after the data directory's store.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch(cmd, &ListCommand{})
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [owner/pkg]",
	Short: "Show builds, installs, pushes and removals",
	Example: `  datapkg history
  datapkg history acme/widget --limit 5`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := &HistoryCommand{Limit: historyLimit}
		if len(args) == 1 {
			id, err := pkgid.Parse(args[0])
			if err != nil {
				return err
			}
			c.Package = &id
		}
		return dispatch(cmd, c)
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of events to show (0 for all)")

	RootCmd.AddCommand(lsCmd)
	RootCmd.AddCommand(historyCmd)
}

func (d *Dispatcher) list(*ListCommand) error {
	roots := d.packages.Roots()
	found := false
	for root := range store.FindPackageDirs(roots) {
		ids, err := store.ListPackages(root)
		if err != nil {
			return apperr.WrapStore("failed to list packages", err)
		}

		rows := make([]output.PackageRow, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, d.packageRow(root, id))
		}
		if found {
			fmt.Fprintln(d.out)
		}
		fmt.Fprint(d.out, output.RenderPackageTree(root, rows))
		found = true
	}

	if !found {
		fmt.Fprintln(d.out, "No packages installed.")
	}
	return nil
}

// packageRow reads the detail columns for one listed package. Columns that
// cannot be read are left empty rather than failing the listing.
func (d *Dispatcher) packageRow(root string, id pkgid.ID) output.PackageRow {
	row := output.PackageRow{ID: id}
	entry, err := d.packages.EntryAt(root, id)
	if err != nil {
		return row
	}
	row.Hash, _ = entry.Hash()
	row.SizeBytes, _ = entry.Size()
	row.UpdatedAt, _ = entry.UpdatedAt()
	return row
}

func (d *Dispatcher) history(c *HistoryCommand) error {
	idx, err := d.openIndex(false)
	if err != nil {
		return err
	}
	if idx == nil {
		fmt.Fprint(d.out, output.RenderHistoryTable(nil))
		return nil
	}
	defer idx.Close()

	if c.Package != nil {
		rec, err := idx.GetPackage(*c.Package)
		switch {
		case err == nil:
			fmt.Fprint(d.out, output.RenderPackageRecord(rec))
		case !errors.Is(err, apperr.ErrNotFound):
			return apperr.WrapStore("failed to read history", err)
		}
	}

	events, err := idx.ListEvents(c.Package, c.Limit)
	if err != nil {
		return apperr.WrapStore("failed to read history", err)
	}
	fmt.Fprint(d.out, output.RenderHistoryTable(events))
	return nil
}
