package errdefs

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
)

func TestClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		is   func(error) bool
	}{
		{"validation", Validationf("bad cron %q", "x"), IsValidation},
		{"not found", NotFound("schedule", "abc"), IsNotFound},
		{"storage", Storage("write", fs.ErrPermission), IsStorage},
		{"security", Security("../etc/passwd", "/srv"), IsSecurity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if !tt.is(tt.err) {
				t.Errorf("classifier rejected %v", tt.err)
			}
		})
	}
}

func TestStorage_KeepsCause(t *testing.T) {
	t.Parallel()

	err := Storage("rename snapshot", fs.ErrExist)
	if !errors.Is(err, fs.ErrExist) {
		t.Errorf("cause lost: %v", err)
	}
	if !strings.Contains(err.Error(), "rename snapshot") {
		t.Errorf("op missing from %q", err.Error())
	}
	if Storage("noop", nil) != nil {
		t.Error("Storage(nil) should be nil")
	}
}

func TestNotFound_DistinctFromValidation(t *testing.T) {
	t.Parallel()

	err := NotFound("artifact", "x")
	if IsValidation(err) {
		t.Error("not-found error classified as validation")
	}
}
