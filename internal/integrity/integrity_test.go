package integrity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "binstrap/internal/errors"
)

// sha256("hello\n") and friends.
const (
	helloSHA256 = "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03"
	helloMD5    = "b1946ac92492d2347c6235b4d2611184"
)

func writeHello(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hello.txt")
	if err := os.WriteFile(path, []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestVerifyAcceptsMatchingDigest(t *testing.T) {
	path := writeHello(t)

	for _, expected := range []string{
		helloSHA256,
		"sha256:" + helloSHA256,
		"SHA256:" + strings.ToUpper(helloSHA256),
		"md5:" + helloMD5,
		"",
	} {
		if err := Verify(path, expected); err != nil {
			t.Errorf("Verify(%q) = %v", expected, err)
		}
	}
}

func TestVerifyRejectsMismatch(t *testing.T) {
	path := writeHello(t)
	err := Verify(path, strings.Repeat("0", 64))
	if err == nil {
		t.Fatal("expected mismatch error")
	}
	if kind := apperrors.KindOf(err); kind != apperrors.KindHashMismatch {
		t.Fatalf("kind = %s, want %s", kind, apperrors.KindHashMismatch)
	}
}

func TestParseDigestMalformed(t *testing.T) {
	for _, expected := range []string{"crc32:1234", "sha256:zz", "sha256:abcd", "md5:" + helloSHA256} {
		_, err := ParseDigest(expected)
		if err == nil {
			t.Errorf("ParseDigest(%q) succeeded", expected)
			continue
		}
		if kind := apperrors.KindOf(err); kind != apperrors.KindUnexpected {
			t.Errorf("ParseDigest(%q) kind = %s", expected, kind)
		}
	}
}

func TestDigestString(t *testing.T) {
	d, err := ParseDigest(helloSHA256)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.String() != "sha256:"+helloSHA256 {
		t.Fatalf("String() = %s", d.String())
	}
}
