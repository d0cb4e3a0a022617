package build

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Entry is one file inside an artifact.
type Entry struct {
	Path string
	Size int64
}

// Contents is what Inspect finds in an artifact.
type Contents struct {
	Metadata *Metadata
	Entries  []Entry
}

// Inspect lists the artifact at path. Artifacts without a metadata entry
// are still listed; Metadata is nil for them.
func Inspect(path string) (*Contents, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Read lists an artifact from r.
func Read(r io.Reader) (*Contents, error) {
	tr := tar.NewReader(r)
	c := &Contents{}
	for first := true; ; first = false {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		if first && hdr.Name == MetadataName {
			var meta Metadata
			if err := json.NewDecoder(tr).Decode(&meta); err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", MetadataName, err)
			}
			c.Metadata = &meta
			continue
		}
		c.Entries = append(c.Entries, Entry{Path: strings.TrimPrefix(hdr.Name, "./"), Size: hdr.Size})
	}
	return c, nil
}
