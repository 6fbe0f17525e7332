// Package camera captures still photos from the tank cameras.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Camera is one capture device. Open acquires the device for a session and
// Close releases it; Capture writes a JPEG to path.
type Camera interface {
	Name() string
	Prefix() string
	Dir() string
	Open(ctx context.Context) error
	Capture(ctx context.Context, path string) error
	Close() error
}

var (
	ErrNotOpen        = errors.New("camera is not open")
	ErrDeviceNotFound = errors.New("camera device not found")
	ErrNoPhoto        = errors.New("capture produced no photo")
)

// timeLayout matches the file names the photo library already holds.
const timeLayout = "2006-01-02 15_04_05"

// FileName returns the photo file name for a capture at t.
func FileName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s %s.jpg", prefix, t.Format(timeLayout))
}

// Shoot captures one photo named for t into the camera's directory and
// returns the file name. The file must exist afterwards for the capture to
// count as a success.
func Shoot(ctx context.Context, c Camera, t time.Time) (string, error) {
	if err := os.MkdirAll(c.Dir(), 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", c.Dir(), err)
	}
	name := FileName(c.Prefix(), t)
	path := filepath.Join(c.Dir(), name)
	if err := c.Capture(ctx, path); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("%s camera: %w", c.Name(), err)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%s camera: %w: %s", c.Name(), ErrNoPhoto, path)
	}
	return name, nil
}

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
	LookPath(file string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func (ExecRunner) LookPath(file string) (string, error) { return exec.LookPath(file) }

var ansiEscape = regexp.MustCompile(`\x1B\[[0-?]*[ -/]*[@-~]`)

// stripANSI removes terminal escape sequences from command output.
func stripANSI(s string) string { return ansiEscape.ReplaceAllString(s, "") }

func commandError(what string, err error, stderr string) error {
	if msg := strings.TrimSpace(stripANSI(stderr)); msg != "" {
		return fmt.Errorf("%s: %w: %s", what, err, msg)
	}
	return fmt.Errorf("%s: %w", what, err)
}
