package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"
	"testing"

	pkgerrors "github.com/pkg/errors"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"transport", NetworkError(CodeFetchTransport, "x", nil), KindNetwork},
		{"status", NetworkError(CodeFetchStatus, "x", nil), KindNetwork},
		{"hash", IntegrityError(CodeHashMismatch, "x", nil), KindHashMismatch},
		{"malformed hash", ValidationError(CodeHashFormat, "x", nil), KindUnexpected},
		{"no match", ExposureError(CodeNoMatch, "x", nil), KindNoMatch},
		{"link", ExposureError(CodeLinkInstall, "x", nil), KindLinkInstall},
		{"taken", ExposureError(CodeDestinationTaken, "x", nil), KindLinkInstall},
		{"plain", fmt.Errorf("boom"), KindUnexpected},
		{"nil", nil, KindUnexpected},
		{"wrapped", pkgerrors.Wrap(IntegrityError(CodeHashMismatch, "x", nil), "outer"), KindHashMismatch},
		{"network category", NetworkError(CodeNetworkGeneric, "x", nil), KindNetwork},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestAnnotateKeepsExistingContext(t *testing.T) {
	base := ExposureError(CodeNoMatch, "nothing", nil).WithModule("expose")
	got := Annotate(base, "bootstrap", "Plan").WithField("url", "u")

	if got != base {
		t.Fatal("annotate replaced an AppError")
	}
	if got.Module != "expose" || got.Operation != "Plan" {
		t.Fatalf("module=%s operation=%s", got.Module, got.Operation)
	}
	if got.StringField("url") != "u" || got.StringField("missing") != "" {
		t.Fatalf("metadata = %v", got.Metadata)
	}
}

func TestAnnotateWrapsPlainErrors(t *testing.T) {
	cause := stdErrors.New("disk gone")
	got := Annotate(cause, "cache", "Commit")

	if got.Kind() != KindUnexpected || got.Module != "cache" {
		t.Fatalf("got %+v", got)
	}
	if !stdErrors.Is(got, cause) {
		t.Fatal("cause lost")
	}
	if Annotate(nil, "m", "op") != nil {
		t.Fatal("annotate(nil) != nil")
	}
}

func TestRecoverableFlag(t *testing.T) {
	if !NetworkError(CodeFetchTransport, "x", nil).Recoverable {
		t.Fatal("network errors are retryable by default")
	}
	if NetworkError(CodeFetchStatus, "x", nil).WithRecoverable(false).Recoverable {
		t.Fatal("WithRecoverable(false) ignored")
	}
	if IntegrityError(CodeHashMismatch, "x", nil).Recoverable {
		t.Fatal("integrity errors must not be retried")
	}
}

func TestErrorString(t *testing.T) {
	err := IntegrityError(CodeHashMismatch, "digest differs", stdErrors.New("cause"))
	msg := err.Error()
	for _, part := range []string{CodeHashMismatch, "digest differs", "cause"} {
		if !strings.Contains(msg, part) {
			t.Errorf("%q missing %q", msg, part)
		}
	}
}
