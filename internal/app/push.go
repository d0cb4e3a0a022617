package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/datapkg/internal/build"
	"github.com/blackwell-systems/datapkg/internal/pkgid"
	"github.com/blackwell-systems/datapkg/internal/registry"
	"github.com/blackwell-systems/datapkg/internal/store"
)

// PushCommand uploads a local package and points its "latest" tag at it.
// An empty Description falls back to the one recorded at build time.
type PushCommand struct {
	Package     pkgid.ID
	Description string
}

func (*PushCommand) command() {}

var pushDescription string

var pushCmd = &cobra.Command{
	Use:   "push owner/pkg",
	Short: "Upload a package to the registry",
	Long: `Upload a locally built or installed package to the registry.

The package is registered under its content hash, uploaded gzip-compressed,
and the "latest" tag is moved to it. Pushing content the registry already
has only moves the tag.`,
	Example: `  datapkg push acme/widget
  datapkg push acme/widget --description "Widget sales, 2026 Q3"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := pkgid.Parse(args[0])
		if err != nil {
			return err
		}
		return dispatch(cmd, &PushCommand{Package: id, Description: pushDescription})
	},
}

func init() {
	pushCmd.Flags().StringVar(&pushDescription, "description", "", "description shown by the registry (default: from the manifest)")

	RootCmd.AddCommand(pushCmd)
}

func (d *Dispatcher) push(ctx context.Context, c *PushCommand) error {
	// Local state is checked before any credentials are loaded so a missing
	// package never costs a network round trip.
	entry, err := d.packages.Resolve(c.Package, store.ModeRead)
	if err != nil {
		return err
	}
	hash, err := entry.Hash()
	if err != nil {
		return err
	}

	description := c.Description
	if description == "" {
		description = d.builtDescription(entry)
	}

	client, err := d.registry(ctx)
	if err != nil {
		return err
	}

	var uploadURL string
	err = d.spin("Registering "+c.Package.String(), func() error {
		var err error
		uploadURL, err = client.RegisterPackage(ctx, c.Package, hash, description)
		return err
	})
	if err != nil {
		return err
	}

	err = entry.WithCompressed(func(f *os.File, size int64) error {
		var body io.Reader = f
		if d.progress {
			bar := d.newProgress("Uploading "+c.Package.String(), size)
			defer bar.Finish()
			body = io.TeeReader(f, bar)
		}
		return client.Upload(ctx, uploadURL, body, size)
	})
	if err != nil {
		return err
	}

	if err := client.SetTag(ctx, c.Package, registry.LatestTag, hash); err != nil {
		return err
	}

	fmt.Fprintf(d.out, "Pushed %s (%s).\n", c.Package, hash)
	d.record(store.ActionPush, entry)
	return nil
}

// builtDescription reads the description stored in the artifact's metadata.
// Artifacts that are not datapkg archives have none.
func (d *Dispatcher) builtDescription(entry *store.Entry) string {
	path, err := entry.Path()
	if err != nil {
		return ""
	}
	contents, err := build.Inspect(path)
	if err != nil || contents.Metadata == nil {
		d.logger.Debug("no build metadata", "package", entry.ID().String(), "error", err)
		return ""
	}
	return contents.Metadata.Description
}
