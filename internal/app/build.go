package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/datapkg/internal/apperr"
	"github.com/blackwell-systems/datapkg/internal/build"
	"github.com/blackwell-systems/datapkg/internal/output"
	"github.com/blackwell-systems/datapkg/internal/pkgid"
	"github.com/blackwell-systems/datapkg/internal/store"
)

// BuildCommand compiles a manifest into the package's local artifact.
type BuildCommand struct {
	Package  pkgid.ID
	Manifest string
}

// InspectCommand prints the contents of an installed package.
type InspectCommand struct {
	Package pkgid.ID
	Verify  bool
}

func (*BuildCommand) command()   {}
func (*InspectCommand) command() {}

var buildCmd = &cobra.Command{
	Use:   "build owner/pkg manifest.yml",
	Short: "Build a package from a manifest",
	Long: `Build a package from a YAML manifest and store it locally.

The manifest lists a description and the files to include. Patterns are
resolved relative to the manifest's directory; directories are included
recursively. The artifact is a tar archive with a datapkg.json metadata
entry first, and building the same inputs always yields the same hash.`,
	Example: `  # build.yml
  description: Example dataset
  files:
    - data/*.csv
    - README.md

  datapkg build acme/widget build.yml`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := pkgid.Parse(args[0])
		if err != nil {
			return err
		}
		return dispatch(cmd, &BuildCommand{Package: id, Manifest: args[1]})
	},
}

var inspectVerify bool

var inspectCmd = &cobra.Command{
	Use:   "inspect owner/pkg",
	Short: "Show the files inside an installed package",
	Example: `  datapkg inspect acme/widget

  # Re-hash the artifact before listing it
  datapkg inspect --verify acme/widget`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := pkgid.Parse(args[0])
		if err != nil {
			return err
		}
		return dispatch(cmd, &InspectCommand{Package: id, Verify: inspectVerify})
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectVerify, "verify", false, "check the artifact against its recorded hash")

	RootCmd.AddCommand(buildCmd)
	RootCmd.AddCommand(inspectCmd)
}

func (d *Dispatcher) build(c *BuildCommand) error {
	entry, err := d.packages.Resolve(c.Package, store.ModeWrite)
	if err != nil {
		return err
	}

	r, meta := build.Reader(c.Manifest)
	defer r.Close()

	hash, err := entry.Put(r)
	if err != nil {
		return err
	}
	d.logger.Debug("built package", "package", c.Package.String(), "hash", hash)

	if m := meta(); m != nil {
		fmt.Fprintf(d.out, "Built %s successfully (%s).\n", c.Package, plural(len(m.Files), "file"))
	} else {
		fmt.Fprintf(d.out, "Built %s successfully.\n", c.Package)
	}
	d.record(store.ActionBuild, entry)
	return nil
}

func (d *Dispatcher) inspect(c *InspectCommand) error {
	entry, err := d.packages.Resolve(c.Package, store.ModeRead)
	if err != nil {
		return err
	}
	path, err := entry.Path()
	if err != nil {
		return err
	}

	if c.Verify {
		if err := entry.Verify(); err != nil {
			return err
		}
		hash, _ := entry.Hash()
		fmt.Fprintf(d.out, "Verified %s (%s).\n", c.Package, hash)
	}

	contents, err := build.Inspect(path)
	if err != nil {
		return apperr.WrapStore(fmt.Sprintf("failed to read %s", c.Package), err)
	}
	fmt.Fprint(d.out, output.RenderContentsTree(c.Package, contents))
	return nil
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
