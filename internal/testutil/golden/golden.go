// SPDX-License-Identifier: AGPL-3.0-or-later

// Package golden compares command output with files under testdata/.
// Run the tests with -update to rewrite them.
package golden

import (
	"flag"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var Update = flag.Bool("update", false, "update golden files")

// TestdataDir is the testdata directory next to the calling test file.
func TestdataDir(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(1)
	if !ok {
		t.Fatalf("runtime.Caller failed")
	}
	return filepath.Join(filepath.Dir(filename), "testdata")
}

// Assert compares got with testdata/<name>.golden, or rewrites the file
// when -update is set.
func Assert(t *testing.T, testdataDir, name, got string) {
	t.Helper()
	if *Update {
		write(t, testdataDir, name, got)
		return
	}
	assert.Equal(t, read(t, testdataDir, name), got, "golden %s differs; rerun with -update if the change is intended", name)
}

func read(t *testing.T, testdataDir, name string) string {
	t.Helper()
	path := goldenPath(t, testdataDir, name)
	data, err := os.ReadFile(path) //nolint:gosec // testdata path controlled by test
	if err != nil {
		t.Fatalf("read golden %s: %v", path, err)
	}
	return string(data)
}

func write(t *testing.T, testdataDir, name, content string) {
	t.Helper()
	path := goldenPath(t, testdataDir, name)
	if err := os.MkdirAll(testdataDir, 0o750); err != nil {
		t.Fatalf("mkdir testdata: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write golden %s: %v", path, err)
	}
}

func goldenPath(t *testing.T, testdataDir, name string) string {
	t.Helper()
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		t.Fatalf("invalid golden name %q", name)
	}
	return filepath.Join(testdataDir, name+".golden")
}
