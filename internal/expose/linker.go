package expose

import (
	stdErrors "errors"
	"os"
	"path/filepath"
	"strings"

	"binstrap/internal/shortcut"

	"github.com/pkg/errors"
)

// Method is the mechanism used to expose a source.
type Method string

const (
	MethodNone     Method = ""
	MethodShortcut Method = "shortcut"
	MethodHardlink Method = "hardlink"
	MethodSymlink  Method = "symlink"
)

// Linker is one exposure strategy.
type Linker interface {
	// Refers reports whether destination already resolves to source.
	Refers(source, destination string) (bool, error)
	// Link creates destination pointing at source. Destination must not exist.
	Link(source, destination string) (Method, error)
}

// FileLinker hardlinks and falls back to an absolute symlink.
type FileLinker struct{}

func (FileLinker) Refers(source, destination string) (bool, error) {
	dst, err := os.Stat(destination)
	if err != nil {
		// missing or dangling
		return false, nil
	}
	src, err := os.Stat(source)
	if err != nil {
		return false, errors.Wrapf(err, "failed to stat source %s", source)
	}
	return os.SameFile(src, dst), nil
}

func (FileLinker) Link(source, destination string) (Method, error) {
	hardErr := os.Link(source, destination)
	if hardErr == nil {
		return MethodHardlink, nil
	}

	abs, err := filepath.Abs(source)
	if err != nil {
		return MethodNone, errors.Wrapf(err, "failed to resolve %s", source)
	}
	if err := os.Symlink(abs, destination); err != nil {
		return MethodNone, errors.Wrapf(stdErrors.Join(hardErr, err), "failed to link %s -> %s", destination, source)
	}
	return MethodSymlink, nil
}

// ShortcutLinker writes .lnk files opening the source maximized.
type ShortcutLinker struct{}

func (ShortcutLinker) Refers(source, destination string) (bool, error) {
	link, err := shortcut.Read(destination)
	if err != nil {
		return false, nil
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return false, errors.Wrapf(err, "failed to resolve %s", source)
	}
	return samePath(link.Target, abs), nil
}

func (ShortcutLinker) Link(source, destination string) (Method, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return MethodNone, errors.Wrapf(err, "failed to resolve %s", source)
	}
	err = shortcut.Write(destination, shortcut.Link{
		Target:      abs,
		WorkingDir:  filepath.Dir(abs),
		ShowCommand: shortcut.ShowMaximized,
	})
	if err != nil {
		return MethodNone, err
	}
	return MethodShortcut, nil
}

func samePath(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	if filepath.Separator == '\\' {
		return strings.EqualFold(a, b)
	}
	return a == b
}
