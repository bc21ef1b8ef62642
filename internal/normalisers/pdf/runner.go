package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/custodia-labs/ragline/internal/core/ports/driven"
)

// ErrPDFToolNotFound indicates pdftotext is not installed.
var ErrPDFToolNotFound = errors.New("pdftotext not found in PATH")

// Verify interface compliance.
var _ driven.CommandRunner = execRunner{}

// execRunner runs programs from PATH.
type execRunner struct{}

// Run executes name with args and returns stdout. Stderr is folded into the error.
func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, ErrPDFToolNotFound
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// CheckAvailable reports whether pdftotext can be found.
func CheckAvailable() error {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return ErrPDFToolNotFound
	}
	return nil
}

// InstallInstructions explains how to install pdftotext.
func InstallInstructions() string {
	return `PDF support requires pdftotext from poppler:
  macOS:          brew install poppler
  Debian/Ubuntu:  apt install poppler-utils
  Fedora:         dnf install poppler-utils`
}
