package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIPSingle extracts the one feed file from a ZIP archive. Broker
// drops are typically a single CSV or XML zipped by itself, sometimes
// alongside macOS resource forks or other packaging noise, which is
// ignored. Zero or several candidate files is an error; guessing which
// one is the feed would import the wrong data silently.
func ExtractZIPSingle(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var feeds []*zip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() || isZIPJunk(f.Name) {
			continue
		}
		feeds = append(feeds, f)
	}

	if len(feeds) != 1 {
		return "", eris.Errorf("zip: expected exactly 1 feed file, found %d", len(feeds))
	}

	return extractZIPEntry(feeds[0], destDir)
}

// isZIPJunk reports archive entries that are packaging noise, not feed
// data. Entry names inside a zip always use forward slashes.
func isZIPJunk(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") {
		return true
	}
	base := path.Base(name)
	return strings.HasPrefix(base, ".") || strings.EqualFold(base, "thumbs.db")
}

// extractZIPEntry writes one archive entry under destDir, creating parent
// directories for nested entry names.
func extractZIPEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrap(err, "zip: write file")
	}

	return destPath, nil
}
