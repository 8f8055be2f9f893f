// SPDX-License-Identifier: AGPL-3.0-or-later

// Package archive creates and extracts the zip archives that extensions are
// shipped in (.zip, .xpi, and .crx which is a zip behind a CRX header).
package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	"github.com/klauspost/compress/zip"

	"github.com/bartekus/webstore/internal/fsutil"
)

// Archiver is the capability used by script builtins and store clients.
type Archiver interface {
	Create(srcDir, zipPath string) (string, error)
	Extract(zipPath, destDir string) error
}

// Zip implements Archiver on the local file system.
type Zip struct {
	Logger logr.Logger
}

// New returns a Zip archiver logging to logger.
func New(logger logr.Logger) *Zip {
	return &Zip{Logger: logger}
}

// Create archives every regular file under srcDir into zipPath and returns the
// absolute path of the archive. Entry names are relative to srcDir, use forward
// slashes and are written in sorted order.
func (z *Zip) Create(srcDir, zipPath string) (string, error) {
	absZip, err := filepath.Abs(zipPath)
	if err != nil {
		return "", err
	}
	z.Logger.Info("Creating zipfile", "zip", absZip, "source", srcDir)

	var files []string
	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if abs, aerr := filepath.Abs(path); aerr == nil && abs == absZip {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walking %s: %w", srcDir, err)
	}
	sort.Strings(files)

	out, err := os.Create(absZip)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", absZip, err)
	}
	defer out.Close()

	w := zip.NewWriter(out)
	for _, rel := range files {
		if err := addFile(w, filepath.Join(srcDir, rel), filepath.ToSlash(rel)); err != nil {
			w.Close()
			return "", err
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing %s: %w", absZip, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", absZip, err)
	}
	return absZip, nil
}

func addFile(w *zip.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("header for %s: %w", path, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	dst, err := w.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("adding %s: %w", name, err)
	}
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// Extract unpacks zipPath into destDir, creating destDir when missing.
// Entries that would land outside destDir are rejected.
func (z *Zip) Extract(zipPath, destDir string) error {
	z.Logger.V(1).Info("Extracting", "zip", zipPath, "dest", destDir)

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", zipPath, err)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", destDir, err)
	}

	for _, f := range r.File {
		target, err := fsutil.SafeJoin(destDir, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	return out.Close()
}

// RepackCRX extracts a .crx file and re-zips its content as <name>.zip in
// targetDir. When targetDir is empty a temporary build directory is used.
// It returns the path of the new zip.
func (z *Zip) RepackCRX(crxPath, targetDir string) (string, error) {
	buildDir, err := os.MkdirTemp("", "webstore-repack-*")
	if err != nil {
		return "", err
	}
	unpacked := filepath.Join(buildDir, "unpacked")
	defer os.RemoveAll(unpacked)

	if err := z.Extract(crxPath, unpacked); err != nil {
		return "", err
	}

	if targetDir == "" {
		targetDir = buildDir
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(crxPath), filepath.Ext(crxPath))
	return z.Create(unpacked, filepath.Join(targetDir, base+".zip"))
}
