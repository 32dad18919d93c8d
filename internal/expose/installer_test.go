package expose

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "binstrap/internal/errors"
	"binstrap/internal/platform"
	"binstrap/internal/shortcut"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func sameFile(t *testing.T, a, b string) bool {
	t.Helper()
	ai, err := os.Stat(a)
	if err != nil {
		t.Fatalf("stat %s: %v", a, err)
	}
	bi, err := os.Stat(b)
	if err != nil {
		t.Fatalf("stat %s: %v", b, err)
	}
	return os.SameFile(ai, bi)
}

func TestInstallCreatesThenSkips(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "cache", "tool")
	writeFile(t, src, "v1")
	target := Target{Name: "tool", Source: src, Destination: filepath.Join(root, "out", "tool")}

	outcome, err := NewInstaller(platform.ForName("linux")).Install(target, false)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if outcome.Action != ActionCreated || outcome.Method == MethodNone {
		t.Fatalf("outcome = %+v", outcome)
	}
	if !sameFile(t, src, target.Destination) {
		t.Fatal("destination does not resolve to source")
	}

	info, _ := os.Lstat(target.Destination)
	outcome, err = NewInstaller(platform.ForName("linux")).Install(target, false)
	if err != nil {
		t.Fatalf("second Install: %v", err)
	}
	if outcome.Action != ActionUnchanged {
		t.Fatalf("second outcome = %+v", outcome)
	}
	after, _ := os.Lstat(target.Destination)
	if !os.SameFile(info, after) || !after.ModTime().Equal(info.ModTime()) {
		t.Fatal("destination was mutated")
	}
}

func TestInstallReplacesStaleDestination(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "cache", "tool")
	writeFile(t, src, "new")
	dst := filepath.Join(root, "out", "tool")
	writeFile(t, dst, "old copy")

	outcome, err := NewInstaller(platform.ForName("linux")).Install(Target{Name: "tool", Source: src, Destination: dst}, false)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if outcome.Action != ActionReplaced {
		t.Fatalf("outcome = %+v", outcome)
	}
	body, _ := os.ReadFile(dst)
	if string(body) != "new" {
		t.Fatalf("destination content = %q", body)
	}
}

func TestInstallReplacesDanglingSymlink(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "tool")
	writeFile(t, src, "x")
	dst := filepath.Join(root, "out", "tool")
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(root, "gone"), dst); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	outcome, err := NewInstaller(platform.ForName("linux")).Install(Target{Name: "tool", Source: src, Destination: dst}, false)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if outcome.Action != ActionReplaced || !sameFile(t, src, dst) {
		t.Fatalf("outcome = %+v", outcome)
	}
}

type symlinkOnly struct{ FileLinker }

func (symlinkOnly) Link(source, destination string) (Method, error) {
	abs, _ := filepath.Abs(source)
	if err := os.Symlink(abs, destination); err != nil {
		return MethodNone, err
	}
	return MethodSymlink, nil
}

func TestInstallSymlinkIsEquivalent(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "tool")
	writeFile(t, src, "x")
	dst := filepath.Join(root, "out", "tool")

	inst := NewInstaller(platform.ForName("linux"), WithFileLinker(symlinkOnly{}))
	outcome, err := inst.Install(Target{Name: "tool", Source: src, Destination: dst}, false)
	if err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if outcome.Method != MethodSymlink || !sameFile(t, src, dst) {
		t.Fatalf("outcome = %+v", outcome)
	}

	outcome, err = NewInstaller(platform.ForName("linux")).Install(Target{Name: "tool", Source: src, Destination: dst}, false)
	if err != nil || outcome.Action != ActionUnchanged {
		t.Fatalf("symlinked destination not recognised: %+v, %v", outcome, err)
	}
}

func TestInstallRejectsSecondClaim(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a", "tool")
	b := filepath.Join(root, "b", "tool")
	writeFile(t, a, "a")
	writeFile(t, b, "b")
	dst := filepath.Join(root, "out", "tool")

	inst := NewInstaller(platform.ForName("linux"))
	if _, err := inst.Install(Target{Name: "tool", Source: a, Destination: dst}, false); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	_, err := inst.Install(Target{Name: "tool", Source: b, Destination: dst}, false)
	if kind := apperrors.KindOf(err); kind != apperrors.KindLinkInstall {
		t.Fatalf("second claim kind = %s (%v)", kind, err)
	}
	body, _ := os.ReadFile(dst)
	if string(body) != "a" {
		t.Fatalf("second claim overwrote destination: %q", body)
	}
}

func TestInstallFailsOnNonEmptyDirectory(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "tool")
	writeFile(t, src, "x")
	dst := filepath.Join(root, "out", "tool")
	writeFile(t, filepath.Join(dst, "keep"), "y")

	_, err := NewInstaller(platform.ForName("linux")).Install(Target{Name: "tool", Source: src, Destination: dst}, false)
	if kind := apperrors.KindOf(err); kind != apperrors.KindLinkInstall {
		t.Fatalf("kind = %s (%v)", kind, err)
	}
}

func TestInstallShortcut(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "cache", "tool.exe")
	writeFile(t, src, "x")
	dst := filepath.Join(root, "out", "tool.lnk")
	target := Target{Name: "tool", Source: src, Destination: dst}

	outcome, err := NewInstaller(platform.ForName("windows")).Install(target, true)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if outcome.Method != MethodShortcut || outcome.Action != ActionCreated {
		t.Fatalf("outcome = %+v", outcome)
	}
	link, err := shortcut.Read(dst)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if link.Target != src || link.ShowCommand != shortcut.ShowMaximized {
		t.Fatalf("link = %+v", link)
	}

	outcome, err = NewInstaller(platform.ForName("windows")).Install(target, true)
	if err != nil || outcome.Action != ActionUnchanged {
		t.Fatalf("rerun = %+v, %v", outcome, err)
	}

	other := filepath.Join(root, "cache", "tool2.exe")
	writeFile(t, other, "y")
	outcome, err = NewInstaller(platform.ForName("windows")).Install(Target{Name: "tool", Source: other, Destination: dst}, true)
	if err != nil || outcome.Action != ActionReplaced {
		t.Fatalf("retarget = %+v, %v", outcome, err)
	}
}

func TestShortcutRequestIgnoredWithoutSupport(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "tool")
	writeFile(t, src, "x")
	dst := filepath.Join(root, "out", "tool")

	outcome, err := NewInstaller(platform.ForName("linux")).Install(Target{Name: "tool", Source: src, Destination: dst}, true)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Method == MethodShortcut {
		t.Fatal("shortcut used on a platform without support")
	}
}
