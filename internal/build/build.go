package build

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// MetadataName is the first entry of every artifact.
const MetadataName = "datapkg.json"

// Metadata is stored as the artifact's first entry.
type Metadata struct {
	Description string     `json:"description"`
	Files       []FileInfo `json:"files"`
}

// FileInfo describes one packaged file.
type FileInfo struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Build reads the manifest at manifestPath and writes the artifact to w.
// The output depends only on file contents and names: entries are sorted,
// and timestamps, owners and modes are fixed.
func Build(manifestPath string, w io.Writer) (*Metadata, error) {
	m, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(manifestPath)
	files, err := m.Resolve(dir)
	if err != nil {
		return nil, err
	}

	meta := &Metadata{Description: m.Description}
	for _, f := range files {
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(f)))
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", f, err)
		}
		meta.Files = append(meta.Files, FileInfo{Path: f, Size: info.Size()})
	}

	tw := tar.NewWriter(w)
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := writeEntry(tw, MetadataName, int64(len(metaJSON)), func(dst io.Writer) error {
		_, err := dst.Write(metaJSON)
		return err
	}); err != nil {
		return nil, err
	}

	for _, f := range meta.Files {
		err := writeEntry(tw, f.Path, f.Size, func(dst io.Writer) error {
			src, err := os.Open(filepath.Join(dir, filepath.FromSlash(f.Path)))
			if err != nil {
				return err
			}
			defer src.Close()
			_, err = io.CopyN(dst, src, f.Size)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish artifact: %w", err)
	}
	return meta, nil
}

func writeEntry(tw *tar.Writer, name string, size int64, body func(io.Writer) error) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     size,
		Mode:     0o644,
		ModTime:  time.Unix(0, 0).UTC(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write header for %s: %w", name, err)
	}
	if err := body(tw); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Reader builds the artifact for manifestPath in the background and
// returns a stream of its bytes. The metadata is available from the
// returned function once the stream has been read to EOF.
func Reader(manifestPath string) (io.ReadCloser, func() *Metadata) {
	pr, pw := io.Pipe()
	var meta *Metadata
	go func() {
		m, err := Build(manifestPath, pw)
		meta = m
		pw.CloseWithError(err)
	}()
	return pr, func() *Metadata { return meta }
}
