package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/datapkg/internal/pkgid"
	"github.com/blackwell-systems/datapkg/internal/registry"
	"github.com/blackwell-systems/datapkg/internal/store"
)

// InstallCommand downloads the package a registry tag points at.
type InstallCommand struct {
	Package pkgid.ID
	Tag     string
	Force   bool
}

func (*InstallCommand) command() {}

var (
	installTag   string
	installForce bool
)

var installCmd = &cobra.Command{
	Use:   "install owner/pkg",
	Short: "Download a package from the registry",
	Long: `Download a package from the registry into the local store.

The tag (default "latest") is resolved to a content hash at the registry,
and the download is only installed if it hashes to that value. A failed or
interrupted install leaves any previously installed version in place.`,
	Example: `  datapkg install acme/widget
  datapkg install acme/widget --tag v2 --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := pkgid.Parse(args[0])
		if err != nil {
			return err
		}
		return dispatch(cmd, &InstallCommand{Package: id, Tag: installTag, Force: installForce})
	},
}

func init() {
	installCmd.Flags().StringVar(&installTag, "tag", registry.LatestTag, "registry tag to install")
	installCmd.Flags().BoolVarP(&installForce, "force", "f", false, "overwrite an installed package without asking")

	RootCmd.AddCommand(installCmd)
}

func (d *Dispatcher) install(ctx context.Context, c *InstallCommand) error {
	entry, err := d.packages.Resolve(c.Package, store.ModeWrite)
	if err != nil {
		return err
	}

	if entry.Exists() && !c.Force {
		fmt.Fprintf(d.out, "%s already installed.\n", c.Package)
		if !d.confirm("Overwrite y/n? ") {
			return nil
		}
	}

	tag := c.Tag
	if tag == "" {
		tag = registry.LatestTag
	}

	client, err := d.registry(ctx)
	if err != nil {
		return err
	}

	var info *registry.PackageInfo
	err = d.spin("Resolving "+c.Package.String(), func() error {
		hash, err := client.GetTag(ctx, c.Package, tag)
		if err != nil {
			return err
		}
		info, err = client.GetPackage(ctx, c.Package, hash)
		return err
	})
	if err != nil {
		return err
	}

	if current, err := entry.Hash(); err == nil && current == info.Hash {
		fmt.Fprintf(d.out, "%s is already up to date (%s).\n", c.Package, info.Hash)
		return nil
	}

	if err := entry.Install(ctx, info.URL, info.Hash); err != nil {
		return err
	}

	fmt.Fprintf(d.out, "Installed %s (%s).\n", c.Package, info.Hash)
	d.record(store.ActionInstall, entry)
	return nil
}
