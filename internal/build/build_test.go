package build

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree creates files under dir from a path->content map.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func sampleProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"build.yml": "description: Widget sales\nfiles:\n  - data/*.csv\n  - README.md\n  - extra\n",
		"data/2024.csv":     "year,units\n2024,10\n",
		"data/2023.csv":     "year,units\n2023,7\n",
		"data/notes.txt":    "not packaged",
		"README.md":         "# Widgets\n",
		"extra/deep/a.json": "{}",
	})
	return filepath.Join(dir, "build.yml")
}

func TestBuild_LayoutAndMetadata(t *testing.T) {
	manifest := sampleProject(t)

	var buf bytes.Buffer
	meta, err := Build(manifest, &buf)
	require.NoError(t, err)

	assert.Equal(t, "Widget sales", meta.Description)
	assert.Equal(t, []FileInfo{
		{Path: "README.md", Size: 10},
		{Path: "data/2023.csv", Size: 18},
		{Path: "data/2024.csv", Size: 19},
		{Path: "extra/deep/a.json", Size: 2},
	}, meta.Files)

	tr := tar.NewReader(&buf)
	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, MetadataName, hdr.Name)
	assert.True(t, hdr.ModTime.Equal(time.Unix(0, 0)))

	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	assert.Equal(t, []string{"README.md", "data/2023.csv", "data/2024.csv", "extra/deep/a.json"}, names)
}

func TestBuild_Deterministic(t *testing.T) {
	manifest := sampleProject(t)

	var first bytes.Buffer
	_, err := Build(manifest, &first)
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	readme := filepath.Join(filepath.Dir(manifest), "README.md")
	require.NoError(t, os.Chtimes(readme, later, later))

	var second bytes.Buffer
	_, err = Build(manifest, &second)
	require.NoError(t, err)

	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestLoadManifest_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown field", "description: x\nfile:\n  - a\n", "failed to parse manifest"},
		{"no files", "description: x\n", "files list is required"},
		{"escapes directory", "files:\n  - ../secret\n", "inside the manifest directory"},
		{"absolute", "files:\n  - /etc/passwd\n", "inside the manifest directory"},
		{"bad glob", "files:\n  - \"data/[\"\n", "bad pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "build.yml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := LoadManifest(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuild_PatternWithoutMatches(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"build.yml": "files:\n  - missing/*.csv\n"})

	_, err := Build(filepath.Join(dir, "build.yml"), io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `pattern "missing/*.csv" matched no files`)
}

func TestReaderAndInspect_RoundTrip(t *testing.T) {
	manifest := sampleProject(t)

	rc, metadata := Reader(manifest)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.NotNil(t, metadata())

	artifact := filepath.Join(t.TempDir(), "artifact")
	require.NoError(t, os.WriteFile(artifact, data, 0o644))

	contents, err := Inspect(artifact)
	require.NoError(t, err)
	require.NotNil(t, contents.Metadata)
	assert.Equal(t, "Widget sales", contents.Metadata.Description)
	assert.Len(t, contents.Entries, 4)
	assert.Equal(t, Entry{Path: "README.md", Size: 10}, contents.Entries[0])
}

func TestReader_PropagatesBuildError(t *testing.T) {
	rc, metadata := Reader(filepath.Join(t.TempDir(), "absent.yml"))
	_, err := io.ReadAll(rc)
	assert.Error(t, err)
	assert.Nil(t, metadata())
}

func TestRead_WithoutMetadata(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "raw.bin", Size: 3, Mode: 0o644, Typeflag: tar.TypeReg}))
	_, err := tw.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	contents, err := Read(&buf)
	require.NoError(t, err)
	assert.Nil(t, contents.Metadata)
	assert.Equal(t, []Entry{{Path: "raw.bin", Size: 3}}, contents.Entries)
}

func TestRead_NotATar(t *testing.T) {
	_, err := Read(bytes.NewReader(bytes.Repeat([]byte("x"), 1024)))
	assert.Error(t, err)
}
