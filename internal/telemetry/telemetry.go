// Package telemetry packages selected pipeline artifacts into a single zip
// bundle for handoff (spec §1 item 8, §4.8). No archiving library is
// available in this codebase's dependency corpus, so this uses the standard
// library's archive/zip directly (see DESIGN.md).
package telemetry

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Package writes a deterministic zip archive at destZipPath containing the
// files named in paths, stored under their paths relative to baseDirectory
// (or their base names when no relative path exists) and in sorted order
// (so the archive is byte-identical for the same input set).
func Package(baseDirectory, destZipPath string, paths []string) error {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	if err := os.MkdirAll(filepath.Dir(destZipPath), 0o750); err != nil {
		return fmt.Errorf("telemetry.package.io.failed: %w", err)
	}
	out, err := os.Create(destZipPath) // #nosec G304 - operator-supplied destination path
	if err != nil {
		return fmt.Errorf("telemetry.package.io.failed: %w", err)
	}
	defer out.Close()

	w := zip.NewWriter(out)
	for _, p := range sorted {
		if err := addFile(w, baseDirectory, p); err != nil {
			w.Close()
			return fmt.Errorf("telemetry.package.io.failed: %w", err)
		}
	}
	return w.Close()
}

func addFile(w *zip.Writer, baseDirectory, path string) error {
	rel, err := filepath.Rel(baseDirectory, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = filepath.ToSlash(rel)

	src, err := os.Open(path) // #nosec G304 - path enumerated from the pipeline's own output directory
	if err != nil {
		return err
	}
	defer src.Close()

	header := &zip.FileHeader{Name: rel, Method: zip.Deflate}
	header.SetModTime(fixedModTime)

	dst, err := w.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

// fixedModTime pins every zip entry's modification time so the archive's
// bytes depend only on file contents and names, matching the determinism
// invariant the rest of the pipeline's artifacts honor.
var fixedModTime = time.Unix(0, 0).UTC()
