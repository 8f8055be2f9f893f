// SPDX-License-Identifier: AGPL-3.0-or-later
package firefox

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"regexp"

	"github.com/klauspost/compress/zip"

	"github.com/bartekus/webstore/internal/apperrors"
)

var (
	rdfID      = regexp.MustCompile(`<em:id>([^<]*)</em:id>`)
	rdfVersion = regexp.MustCompile(`<em:version>([^<]*)</em:version>`)
)

type geckoSettings struct {
	Gecko struct {
		ID string `json:"id"`
	} `json:"gecko"`
}

type webExtManifest struct {
	Version                 string         `json:"version"`
	BrowserSpecificSettings *geckoSettings `json:"browser_specific_settings"`
	Applications            *geckoSettings `json:"applications"`
}

// ParseManifest reads the add-on id and version from an xpi. Legacy add-ons
// carry them in install.rdf; WebExtensions in manifest.json.
func ParseManifest(filename string) (id, version string, err error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return "", "", apperrors.WrapManifest(err, fmt.Sprintf("open %s", filename))
	}
	defer zr.Close()

	rdf, err := readEntry(&zr.Reader, "install.rdf")
	switch {
	case err == nil:
		id, version = firstGroup(rdfID, rdf), firstGroup(rdfVersion, rdf)
	case !errors.Is(err, fs.ErrNotExist):
		return "", "", apperrors.WrapManifest(err, fmt.Sprintf("read install.rdf of %s", filename))
	default:
		id, version, err = parseWebExtManifest(&zr.Reader, filename)
		if err != nil {
			return "", "", err
		}
	}

	if id == "" || version == "" {
		return "", "", fmt.Errorf("%w: version or id could not be parsed from %s, obtained id %q, version %q",
			apperrors.ErrManifestParse, filename, id, version)
	}
	return id, version, nil
}

func parseWebExtManifest(zr *zip.Reader, filename string) (id, version string, err error) {
	data, err := readEntry(zr, "manifest.json")
	if errors.Is(err, fs.ErrNotExist) {
		return "", "", fmt.Errorf("%w: %s contains neither install.rdf nor manifest.json", apperrors.ErrManifestParse, filename)
	}
	if err != nil {
		return "", "", apperrors.WrapManifest(err, fmt.Sprintf("read manifest.json of %s", filename))
	}

	var m webExtManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return "", "", apperrors.WrapManifest(err, fmt.Sprintf("decode manifest.json of %s", filename))
	}
	switch {
	case m.BrowserSpecificSettings != nil && m.BrowserSpecificSettings.Gecko.ID != "":
		id = m.BrowserSpecificSettings.Gecko.ID
	case m.Applications != nil:
		id = m.Applications.Gecko.ID
	}
	return id, m.Version, nil
}

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fs.ErrNotExist
}

func firstGroup(re *regexp.Regexp, data []byte) string {
	m := re.FindSubmatch(data)
	if m == nil {
		return ""
	}
	return string(m[1])
}
