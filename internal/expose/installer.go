package expose

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	apperrors "binstrap/internal/errors"
	"binstrap/internal/platform"
)

// Action describes what Install did to the destination.
type Action string

const (
	ActionUnchanged Action = "unchanged"
	ActionCreated   Action = "created"
	ActionReplaced  Action = "replaced"
)

// Outcome is the result of one Install call.
type Outcome struct {
	Action Action
	Method Method
}

// Installer places targets into the output directory. One Installer serves
// one run and refuses to let two targets claim the same destination.
type Installer struct {
	files     Linker
	shortcuts Linker

	mu     sync.Mutex
	claims map[string]string
}

// InstallerOption customizes an Installer.
type InstallerOption func(*Installer)

// WithFileLinker overrides the hardlink/symlink strategy.
func WithFileLinker(l Linker) InstallerOption {
	return func(i *Installer) {
		i.files = l
	}
}

// NewInstaller picks the strategies for p once.
func NewInstaller(p platform.Platform, opts ...InstallerOption) *Installer {
	inst := &Installer{
		files:  FileLinker{},
		claims: make(map[string]string),
	}
	if p.SupportsShortcuts {
		inst.shortcuts = ShortcutLinker{}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(inst)
		}
	}
	return inst
}

// Install makes target.Destination refer to target.Source, doing nothing when
// it already does.
func (i *Installer) Install(target Target, useShortcut bool) (Outcome, error) {
	if err := i.claim(target); err != nil {
		return Outcome{}, err
	}

	linker := i.files
	if useShortcut && i.shortcuts != nil {
		linker = i.shortcuts
	}

	same, err := linker.Refers(target.Source, target.Destination)
	if err != nil {
		return Outcome{}, installError("failed to inspect destination", err, target)
	}
	if same {
		return Outcome{Action: ActionUnchanged}, nil
	}

	action := ActionCreated
	if _, err := os.Lstat(target.Destination); err == nil {
		action = ActionReplaced
	}
	if err := os.Remove(target.Destination); err != nil && !os.IsNotExist(err) {
		return Outcome{}, installError("failed to remove existing destination", err, target)
	}

	if err := os.MkdirAll(filepath.Dir(target.Destination), 0o755); err != nil {
		return Outcome{}, installError("failed to create output directory", err, target)
	}

	method, err := linker.Link(target.Source, target.Destination)
	if err != nil {
		return Outcome{}, installError("failed to create link", err, target)
	}
	return Outcome{Action: action, Method: method}, nil
}

func (i *Installer) claim(target Target) error {
	key := filepath.Clean(target.Destination)
	if abs, err := filepath.Abs(key); err == nil {
		key = abs
	}
	if filepath.Separator == '\\' {
		key = strings.ToLower(key)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if owner, ok := i.claims[key]; ok {
		return apperrors.ExposureError(apperrors.CodeDestinationTaken, "destination already claimed in this run", nil).
			WithModule("expose").
			WithOperation("Install").
			WithField("exposure", target.Name).
			WithField("destination", target.Destination).
			WithField("claimed_by", owner)
	}
	i.claims[key] = target.Source
	return nil
}

func installError(msg string, err error, target Target) error {
	return apperrors.ExposureError(apperrors.CodeLinkInstall, msg, err).
		WithModule("expose").
		WithOperation("Install").
		WithField("exposure", target.Name).
		WithField("source", target.Source).
		WithField("destination", target.Destination)
}
