package archive

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "binstrap/internal/errors"

	"github.com/pkg/errors"
)

// ExpansionSuffix is appended to an archive path to name its expansion directory.
const ExpansionSuffix = ".unzip"

// IsZip reports whether path names a zip archive.
func IsZip(path string) bool {
	return strings.HasSuffix(strings.ToLower(filepath.Base(path)), ".zip")
}

// ExpansionDir returns where the archive at path is expanded.
func ExpansionDir(path string) string {
	return path + ExpansionSuffix
}

// Expand returns the artifact for the downloaded file at path. Zip archives are
// extracted into ExpansionDir(path); an existing expansion is reused unless
// refresh is set.
func Expand(path string, refresh bool) (Artifact, error) {
	if !IsZip(path) {
		return Single(path), nil
	}

	dir := ExpansionDir(path)
	if !refresh {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return collect(dir)
		}
	}

	if err := extractInto(path, dir); err != nil {
		return Artifact{}, apperrors.SystemError(apperrors.CodeArchiveExpand, "failed to expand archive", err).
			WithModule("archive").
			WithOperation("Expand").
			WithField("path", path)
	}
	return collect(dir)
}

// extractInto unpacks the archive into a sibling temp dir and swaps it into dir.
func extractInto(zipPath, dir string) error {
	tempDir, err := os.MkdirTemp(filepath.Dir(dir), filepath.Base(dir)+"-*")
	if err != nil {
		return errors.Wrap(err, "failed to create staging directory")
	}
	defer os.RemoveAll(tempDir)

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return errors.Wrapf(err, "failed to open archive %s", zipPath)
	}
	defer r.Close()

	for _, f := range r.File {
		if err := extractEntry(f, tempDir); err != nil {
			return errors.Wrapf(err, "failed to extract %s", f.Name)
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "failed to remove stale expansion %s", dir)
	}
	if err := os.Rename(tempDir, dir); err != nil {
		return errors.Wrapf(err, "failed to move expansion into %s", dir)
	}
	return nil
}

func extractEntry(f *zip.File, dest string) error {
	dest, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	targetPath := filepath.Join(dest, filepath.FromSlash(f.Name))

	// Prevent ZipSlip
	if targetPath != dest && !strings.HasPrefix(targetPath, dest+string(os.PathSeparator)) {
		return errors.Errorf("zip entry %q escapes destination directory", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(targetPath, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	outFile, err := os.OpenFile(targetPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(outFile, rc); err != nil {
		outFile.Close()
		return err
	}
	return outFile.Close()
}

func collect(dir string) (Artifact, error) {
	var members []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			members = append(members, path)
		}
		return nil
	})
	if err != nil {
		return Artifact{}, apperrors.SystemError(apperrors.CodeArchiveExpand, "failed to list expanded archive", err).
			WithModule("archive").
			WithOperation("Expand").
			WithField("path", dir)
	}

	sort.Strings(members)
	return Many(dir, members), nil
}
