package camera

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

type call struct {
	name string
	args []string
}

// fakeRunner scripts command results and optionally writes the output file
// named by the last argument.
type fakeRunner struct {
	calls   []call
	stdout  map[string]string
	stderr  map[string]string
	errs    map[string]error
	paths   map[string]string
	writeTo bool
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, string, error) {
	f.calls = append(f.calls, call{name, args})
	if err := f.errs[name]; err != nil {
		return f.stdout[name], f.stderr[name], err
	}
	if f.writeTo && len(args) > 0 {
		if err := os.WriteFile(args[len(args)-1], []byte("jpeg"), 0o644); err != nil {
			return "", "", err
		}
	}
	return f.stdout[name], f.stderr[name], nil
}

func (f *fakeRunner) LookPath(file string) (string, error) {
	if p, ok := f.paths[file]; ok {
		return p, nil
	}
	return "", errors.New("executable file not found in $PATH")
}

const v4l2Output = "bcm2835-codec-decode (platform:bcm2835-codec):\n\t/dev/video10\n\t/dev/video11\n\n" +
	"HD Webcam C525 (usb-3f980000.usb-1.3):\n\t/dev/video0\n\t/dev/video1\n"

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 6, 15, 9, 5, 7, 0, time.UTC)
	if got, want := FileName("USB-Cam", ts), "USB-Cam 2024-06-15 09_05_07.jpg"; got != want {
		t.Errorf("FileName = %q, want %q", got, want)
	}
}

func TestStripANSI(t *testing.T) {
	in := "\x1b[1;31mError opening device\x1b[0m"
	if got := stripANSI(in); got != "Error opening device" {
		t.Errorf("stripANSI = %q", got)
	}
}

func TestUSBCamera_OpenResolvesDevice(t *testing.T) {
	r := &fakeRunner{stdout: map[string]string{"v4l2-ctl": v4l2Output}}
	c := NewUSBCamera(USBConfig{DeviceName: "HD Webcam C525"}, r)

	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.Device() != "/dev/video0" {
		t.Errorf("Device = %q, want /dev/video0", c.Device())
	}
}

func TestUSBCamera_OpenDeviceMissing(t *testing.T) {
	r := &fakeRunner{stdout: map[string]string{"v4l2-ctl": "bcm2835-isp (platform:bcm2835-isp):\n\t/dev/video13\n"}}
	c := NewUSBCamera(USBConfig{DeviceName: "HD Webcam C525"}, r)

	if err := c.Open(context.Background()); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Open error = %v, want ErrDeviceNotFound", err)
	}
}

func TestUSBCamera_OpenCommandFails(t *testing.T) {
	r := &fakeRunner{
		errs:   map[string]error{"v4l2-ctl": errors.New("exit status 1")},
		stderr: map[string]string{"v4l2-ctl": "\x1b[31mno devices\x1b[0m"},
	}
	c := NewUSBCamera(USBConfig{DeviceName: "HD Webcam C525"}, r)

	err := c.Open(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no devices") || strings.Contains(err.Error(), "\x1b") {
		t.Errorf("Open error = %v", err)
	}
}

func TestUSBCamera_Shoot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "usb")
	r := &fakeRunner{stdout: map[string]string{"v4l2-ctl": v4l2Output}, writeTo: true}
	c := NewUSBCamera(USBConfig{Dir: dir, DeviceName: "HD Webcam C525", Resolution: "1920x1080", SkipFrames: 20}, r)
	if err := c.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	ts := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
	name, err := Shoot(context.Background(), c, ts)
	if err != nil {
		t.Fatalf("Shoot: %v", err)
	}
	if name != "USB-Cam 2024-06-15 09_00_00.jpg" {
		t.Errorf("name = %q", name)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		t.Errorf("photo missing: %v", err)
	}

	last := r.calls[len(r.calls)-1]
	want := []string{"-d", "/dev/video0", "-r", "1920x1080", "-S", "20", "--no-banner", filepath.Join(dir, name)}
	if last.name != "fswebcam" || !reflect.DeepEqual(last.args, want) {
		t.Errorf("fswebcam call = %s %v, want %v", last.name, last.args, want)
	}
}

func TestUSBCamera_CaptureWithoutOpen(t *testing.T) {
	c := NewUSBCamera(USBConfig{Dir: t.TempDir()}, &fakeRunner{})
	if _, err := Shoot(context.Background(), c, time.Now()); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Shoot error = %v, want ErrNotOpen", err)
	}
}

func TestShoot_MissingFileIsFailure(t *testing.T) {
	r := &fakeRunner{paths: map[string]string{"libcamera-still": "/usr/bin/libcamera-still"}}
	c := NewRibbonCamera(RibbonConfig{Dir: t.TempDir(), Width: 3280, Height: 2464}, r)
	if err := c.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := Shoot(context.Background(), c, time.Now()); !errors.Is(err, ErrNoPhoto) {
		t.Errorf("Shoot error = %v, want ErrNoPhoto", err)
	}
}

func TestRibbonCamera(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{paths: map[string]string{"libcamera-still": "/usr/bin/libcamera-still"}, writeTo: true}
	c := NewRibbonCamera(RibbonConfig{Dir: dir, Width: 3280, Height: 2464}, r)

	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	ts := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
	name, err := Shoot(context.Background(), c, ts)
	if err != nil {
		t.Fatalf("Shoot: %v", err)
	}
	if name != "Ribbon-Cam 2024-06-15 09_00_00.jpg" {
		t.Errorf("name = %q", name)
	}
	want := []string{"-n", "-t", "1", "--width", "3280", "--height", "2464", "-o", filepath.Join(dir, name)}
	if got := r.calls[0]; got.name != "/usr/bin/libcamera-still" || !reflect.DeepEqual(got.args, want) {
		t.Errorf("call = %s %v", got.name, got.args)
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := Shoot(context.Background(), c, ts); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Shoot after Close = %v, want ErrNotOpen", err)
	}
}

func TestRibbonCamera_OpenMissingCommand(t *testing.T) {
	c := NewRibbonCamera(RibbonConfig{Dir: t.TempDir()}, &fakeRunner{})
	if err := c.Open(context.Background()); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Open error = %v, want ErrDeviceNotFound", err)
	}
}
