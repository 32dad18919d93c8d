package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func useBufferWriters(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	prevOut, prevErr := stdOut, stdErr
	stdOut, stdErr = out, errOut
	t.Cleanup(func() {
		stdOut, stdErr = prevOut, prevErr
	})
	return out, errOut
}

func TestParseCLIFlags(t *testing.T) {
	t.Setenv("BINSTRAP_CONFIG", "/tmp/env.yaml")

	opts, err := parseCLIFlags([]string{"-workers", "4", "a.yaml", "b.yaml"})
	if err != nil {
		t.Fatal(err)
	}
	if opts.command != cmdRun || opts.workers != 4 || opts.configPath != "/tmp/env.yaml" {
		t.Fatalf("opts = %+v", opts)
	}
	if !reflect.DeepEqual(opts.manifests, []string{"a.yaml", "b.yaml"}) {
		t.Fatalf("manifests = %v", opts.manifests)
	}

	opts, err = parseCLIFlags([]string{"-config", "/tmp/flag.yaml", "run", "-manifest", "m1.yaml", "-plain", "m2.yaml"})
	if err != nil {
		t.Fatal(err)
	}
	if opts.configPath != "/tmp/flag.yaml" || !opts.plain {
		t.Fatalf("opts = %+v", opts)
	}
	if !reflect.DeepEqual(opts.manifests, []string{"m1.yaml", "m2.yaml"}) {
		t.Fatalf("manifests = %v", opts.manifests)
	}
}

func TestParseCLIFlagsCommands(t *testing.T) {
	opts, err := parseCLIFlags([]string{"clean", "-yes"})
	if err != nil || opts.command != cmdClean || !opts.assumeYes {
		t.Fatalf("clean opts = %+v, %v", opts, err)
	}
	opts, err = parseCLIFlags([]string{"-version"})
	if err != nil || opts.command != cmdVersion {
		t.Fatalf("version opts = %+v, %v", opts, err)
	}
	if _, err := parseCLIFlags([]string{"status", "extra"}); err == nil {
		t.Fatal("status accepted positional arguments")
	}
	if _, err := parseCLIFlags([]string{"-no-such-flag"}); err == nil {
		t.Fatal("unknown flag accepted")
	}
}

func TestRunVersionOutput(t *testing.T) {
	out, _ := useBufferWriters(t)
	if code := run(cliOptions{command: cmdVersion}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out.String(), "binstrap") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunExitCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("tool"))
	}))
	defer srv.Close()

	root := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(root, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	good := write("good.yaml", "platforms:\n  all:\n    files:\n      - url: "+srv.URL+"/tool\n        expose: {tool: tool}\n")
	bad := write("bad.yaml", "platforms:\n  all:\n    files:\n      - url: "+srv.URL+"/missing\n")

	base := cliOptions{
		command:    cmdRun,
		configPath: write("settings.yaml", "max_retries: 1\n"),
		cacheDir:   filepath.Join(root, "cache"),
		outputDir:  filepath.Join(root, "bin"),
		plain:      true,
	}

	useBufferWriters(t)
	ok := base
	ok.manifests = []string{good}
	if code := run(ok); code != 0 {
		t.Fatalf("successful run exit code = %d", code)
	}

	failing := base
	failing.manifests = []string{good, bad}
	if code := run(failing); code != 1 {
		t.Fatalf("failing run exit code = %d", code)
	}

	missing := base
	missing.manifests = []string{filepath.Join(root, "absent.yaml")}
	if code := run(missing); code != 1 {
		t.Fatalf("missing manifest exit code = %d", code)
	}

	status := base
	status.command = cmdStatus
	if code := run(status); code != 0 {
		t.Fatalf("status exit code = %d", code)
	}
}
