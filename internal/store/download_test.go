package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartekus/webstore/internal/apperrors"
)

// fakeClient replays a fixed sequence of statuses; the last one repeats.
type fakeClient struct {
	statuses  []Status
	statusErr error
	calls     int
	files     map[string]string
	fetched   []string
}

func (f *fakeClient) Status(ctx context.Context, id, version string) (Status, error) {
	if f.statusErr != nil {
		return Status{}, f.statusErr
	}
	i := f.calls
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.calls++
	return f.statuses[i], nil
}

func (f *fakeClient) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.fetched = append(f.fetched, url)
	content, ok := f.files[url]
	if !ok {
		return nil, errors.New("unexpected url " + url)
	}
	return []byte(content), nil
}

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) { s.calls = append(s.calls, d) }

func newTestDownloader() (*Downloader, *sleepRecorder) {
	rec := &sleepRecorder{}
	return &Downloader{Logger: logr.Discard(), Sleep: rec.sleep}, rec
}

func TestDownload_ProcessedOnFirstAttempt(t *testing.T) {
	d, rec := newTestDownloader()
	dir := t.TempDir()
	c := &fakeClient{
		statuses: []Status{{Processed: true, URLs: []string{"https://cdn.test/files/addon-1.0.xpi"}}},
		files:    map[string]string{"https://cdn.test/files/addon-1.0.xpi": "signed"},
	}

	written, err := d.Download(context.Background(), c, "addon@test", "1.0", DownloadOptions{
		Folder: dir, Attempts: 5, Interval: 10 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, c.calls)
	assert.Empty(t, rec.calls)
	assert.Equal(t, []string{filepath.Join(dir, "addon-1.0.xpi")}, written)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	data, err := os.ReadFile(written[0])
	require.NoError(t, err)
	assert.Equal(t, "signed", string(data))
}

func TestDownload_NeverProcessed(t *testing.T) {
	d, rec := newTestDownloader()
	c := &fakeClient{statuses: []Status{{Processed: false}}}

	_, err := d.Download(context.Background(), c, "addon@test", "1.0", DownloadOptions{
		Folder: t.TempDir(), Attempts: 4, Interval: 7 * time.Second,
	})
	require.ErrorIs(t, err, apperrors.ErrNotProcessedInTime)

	assert.Equal(t, 4, c.calls)
	assert.Equal(t, []time.Duration{7 * time.Second, 7 * time.Second, 7 * time.Second}, rec.calls)
	assert.Empty(t, c.fetched)
}

func TestDownload_ProcessedWithoutURLsIsNotReady(t *testing.T) {
	d, rec := newTestDownloader()
	c := &fakeClient{
		statuses: []Status{
			{Processed: true},
			{Processed: true, URLs: []string{"https://cdn.test/a.xpi"}},
		},
		files: map[string]string{"https://cdn.test/a.xpi": "a"},
	}

	_, err := d.Download(context.Background(), c, "addon@test", "1.0", DownloadOptions{
		Folder: t.TempDir(), Attempts: 3, Interval: time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, c.calls)
	assert.Len(t, rec.calls, 1)
}

func TestDownload_ValidationFailureShortCircuits(t *testing.T) {
	d, rec := newTestDownloader()
	c := &fakeClient{statuses: []Status{{
		Processed: false,
		Validation: Partition(false, []Message{
			{Type: "error", Message: "eval is evil"},
			{Type: "warning", Message: "unsafe innerHTML"},
		}),
	}}}

	_, err := d.Download(context.Background(), c, "addon@test", "1.0", DownloadOptions{
		Folder: t.TempDir(), Attempts: 5, Interval: time.Minute,
	})
	require.ErrorIs(t, err, apperrors.ErrValidationFailed)
	assert.Contains(t, err.Error(), "eval is evil")
	assert.Equal(t, 1, c.calls)
	assert.Empty(t, rec.calls)
}

func TestDownload_ValidationWarningsAreNotFatal(t *testing.T) {
	d, _ := newTestDownloader()
	c := &fakeClient{
		statuses: []Status{{
			Processed:  true,
			URLs:       []string{"https://cdn.test/a.xpi"},
			Validation: Partition(true, []Message{{Type: "warning", Message: "minor"}}),
		}},
		files: map[string]string{"https://cdn.test/a.xpi": "a"},
	}

	_, err := d.Download(context.Background(), c, "addon@test", "1.0", DownloadOptions{
		Folder: t.TempDir(), Attempts: 1,
	})
	require.NoError(t, err)
}

func TestDownload_TargetName(t *testing.T) {
	t.Run("single url uses target name", func(t *testing.T) {
		d, _ := newTestDownloader()
		dir := t.TempDir()
		c := &fakeClient{
			statuses: []Status{{Processed: true, URLs: []string{"https://cdn.test/files/signed-1.0.xpi"}}},
			files:    map[string]string{"https://cdn.test/files/signed-1.0.xpi": "x"},
		}

		written, err := d.Download(context.Background(), c, "id", "1.0", DownloadOptions{
			Folder: dir, Attempts: 1, TargetName: "out.xpi",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "out.xpi")}, written)
		assert.FileExists(t, filepath.Join(dir, "out.xpi"))
		assert.NoFileExists(t, filepath.Join(dir, "signed-1.0.xpi"))
	})

	t.Run("target name covers url without file name", func(t *testing.T) {
		d, _ := newTestDownloader()
		dir := t.TempDir()
		c := &fakeClient{
			statuses: []Status{{Processed: true, URLs: []string{"https://cdn.test/"}}},
			files:    map[string]string{"https://cdn.test/": "x"},
		}

		written, err := d.Download(context.Background(), c, "id", "1.0", DownloadOptions{
			Folder: dir, Attempts: 1, TargetName: "out.xpi",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "out.xpi")}, written)
	})

	t.Run("multiple urls ignore target name", func(t *testing.T) {
		d, _ := newTestDownloader()
		dir := t.TempDir()
		c := &fakeClient{
			statuses: []Status{{Processed: true, URLs: []string{
				"https://cdn.test/files/a.xpi?src=api",
				"https://cdn.test/files/b.xpi",
			}}},
			files: map[string]string{
				"https://cdn.test/files/a.xpi?src=api": "a",
				"https://cdn.test/files/b.xpi":         "b",
			},
		}

		_, err := d.Download(context.Background(), c, "id", "1.0", DownloadOptions{
			Folder: dir, Attempts: 1, TargetName: "out.xpi",
		})
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(dir, "a.xpi"))
		assert.FileExists(t, filepath.Join(dir, "b.xpi"))
		assert.NoFileExists(t, filepath.Join(dir, "out.xpi"))
	})
}

func TestDownload_CreatesFolder(t *testing.T) {
	d, _ := newTestDownloader()
	dir := filepath.Join(t.TempDir(), "nested", "dist")
	c := &fakeClient{
		statuses: []Status{{Processed: true, URLs: []string{"https://cdn.test/a.xpi"}}},
		files:    map[string]string{"https://cdn.test/a.xpi": "a"},
	}

	_, err := d.Download(context.Background(), c, "id", "1.0", DownloadOptions{Folder: dir, Attempts: 1})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "a.xpi"))
}

func TestDownload_InvalidAttempts(t *testing.T) {
	d, _ := newTestDownloader()
	_, err := d.Download(context.Background(), &fakeClient{}, "id", "1.0", DownloadOptions{Attempts: 0})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestDownload_StatusErrorPropagates(t *testing.T) {
	d, _ := newTestDownloader()
	boom := errors.New("boom")
	_, err := d.Download(context.Background(), &fakeClient{statusErr: boom}, "id", "1.0", DownloadOptions{Attempts: 3})
	assert.ErrorIs(t, err, boom)
}

func TestFileName(t *testing.T) {
	name, err := FileName("https://addons.mozilla.org/firefox/downloads/file/123/addon-1.0-fx.xpi?src=api")
	require.NoError(t, err)
	assert.Equal(t, "addon-1.0-fx.xpi", name)

	_, err = FileName("https://cdn.test/")
	assert.ErrorIs(t, err, apperrors.ErrVendorRequest)
}

func TestPartition(t *testing.T) {
	v := Partition(true, []Message{
		{Type: "error", Message: "e"},
		{Type: "warning", Message: "w"},
		{Type: "notice", Message: "n"},
	})
	assert.Len(t, v.Errors, 1)
	assert.Len(t, v.Warnings, 1)
	assert.Len(t, v.Notices, 1)
	assert.False(t, v.Failed())

	var nilResult *ValidationResult
	assert.False(t, nilResult.Failed())
}
