// Package archive unpacks uploaded project zips and packs converted output
// back into a single downloadable zip.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrExtraction is wrapped by every failure to unpack an upload.
var ErrExtraction = errors.New("extraction failed")

// Extract unpacks the zip at src into dest, preserving relative paths.
// Entries that would land outside dest are rejected. On failure dest may be
// partially populated; callers own its cleanup.
func Extract(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		if r != nil {
			r.Close()
		}
		return fmt.Errorf("%w: open %s: %v", ErrExtraction, filepath.Base(src), err)
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("%w: create destination: %v", ErrExtraction, err)
	}
	root, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	for _, zf := range r.File {
		target, err := entryPath(root, zf.Name)
		if err != nil {
			return err
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("%w: %v", ErrExtraction, err)
			}
			continue
		}
		if err := extractFile(zf, target); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrExtraction, zf.Name, err)
		}
	}
	return nil
}

// entryPath maps a zip entry name to a path under root.
func entryPath(root, name string) (string, error) {
	clean := filepath.FromSlash(strings.ReplaceAll(name, `\`, "/"))
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return "", fmt.Errorf("%w: absolute entry path %q", ErrExtraction, name)
	}
	target := filepath.Join(root, clean)
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: entry %q escapes destination", ErrExtraction, name)
	}
	return target, nil
}

func extractFile(zf *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Create writes every regular file under srcDir into a Deflate-compressed zip
// at dst. Walk order is lexical, so the same tree always yields the same
// entry order. Archive paths are relative to srcDir and slash separated.
func Create(srcDir, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	zw := zip.NewWriter(out)

	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		return addFile(zw, path, filepath.ToSlash(rel))
	})

	closeErr := zw.Close()
	fileErr := out.Close()
	switch {
	case walkErr != nil:
		return fmt.Errorf("write archive: %w", walkErr)
	case closeErr != nil:
		return fmt.Errorf("finalize archive: %w", closeErr)
	case fileErr != nil:
		return fmt.Errorf("close archive: %w", fileErr)
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
