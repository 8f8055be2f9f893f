package archive

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/go-logr/logr"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	out := map[string]string{}
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		out[f.Name] = string(data)
	}
	return out
}

func TestCreate(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sample_folder")
	writeTree(t, src, map[string]string{
		"hello":            "Sample bare content",
		"js/background.js": "console.log(1)",
	})

	z := New(logr.Discard())
	out, err := z.Create(src, filepath.Join(dir, "testzip.zip"))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(out))

	got := readZip(t, out)
	assert.Equal(t, map[string]string{
		"hello":            "Sample bare content",
		"js/background.js": "console.log(1)",
	}, got)
}

func TestCreate_SkipsItselfWhenInsideSource(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"manifest.json": "{}"})

	z := New(logr.Discard())
	out, err := z.Create(src, filepath.Join(src, "self.zip"))
	require.NoError(t, err)

	got := readZip(t, out)
	assert.Equal(t, map[string]string{"manifest.json": "{}"}, got)
}

func TestExtractCreateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	original := map[string]string{
		"manifest.json":    `{"version":"1.0"}`,
		"icons/icon48.png": "\x89PNG binary",
		"a/b/c/deep.txt":   "deep",
	}
	src := filepath.Join(dir, "src")
	writeTree(t, src, original)

	z := New(logr.Discard())
	first, err := z.Create(src, filepath.Join(dir, "first.zip"))
	require.NoError(t, err)

	extracted := filepath.Join(dir, "extracted")
	require.NoError(t, z.Extract(first, extracted))

	second, err := z.Create(extracted, filepath.Join(dir, "second.zip"))
	require.NoError(t, err)

	assert.Equal(t, original, readZip(t, second))

	names := func(m map[string]string) []string {
		var out []string
		for k := range m {
			out = append(out, k)
		}
		sort.Strings(out)
		return out
	}
	assert.Equal(t, names(readZip(t, first)), names(readZip(t, second)))
}

func TestExtract_RejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "evil.zip")

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("../evil.txt")
	require.NoError(t, err)
	_, err = f.Write([]byte("nope"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(zipPath, buf.Bytes(), 0o644))

	z := New(logr.Discard())
	err = z.Extract(zipPath, filepath.Join(dir, "out"))
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "evil.txt"))
}

func TestRepackCRX(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("manifest.json")
	require.NoError(t, err)
	_, err = f.Write([]byte(`{"name":"ext"}`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// CRX files carry a binary header in front of the zip payload.
	crx := append([]byte("Cr24\x03\x00\x00\x00\x00\x00\x00\x00"), buf.Bytes()...)
	crxPath := filepath.Join(dir, "extension.crx")
	require.NoError(t, os.WriteFile(crxPath, crx, 0o644))

	target := filepath.Join(dir, "dist")
	z := New(logr.Discard())
	out, err := z.RepackCRX(crxPath, target)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(target, "extension.zip"), out)
	assert.Equal(t, map[string]string{"manifest.json": `{"name":"ext"}`}, readZip(t, out))
}
