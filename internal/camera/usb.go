package camera

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

// USBConfig configures a USBCamera.
type USBConfig struct {
	Dir        string
	DeviceName string // as listed by v4l2-ctl, e.g. "HD Webcam C525"
	Resolution string // e.g. "1920x1080"
	SkipFrames int    // frames discarded while exposure settles
}

// USBCamera captures with fswebcam from a V4L2 device located by name.
type USBCamera struct {
	cfg     USBConfig
	runner  Runner
	pattern *regexp.Regexp
	device  string
}

// NewUSBCamera returns a closed USB camera.
func NewUSBCamera(cfg USBConfig, runner Runner) *USBCamera {
	return &USBCamera{
		cfg:     cfg,
		runner:  runner,
		pattern: regexp.MustCompile(regexp.QuoteMeta(cfg.DeviceName) + ` \(\S+\):\n\t(/dev/video\d{1,2})`),
	}
}

func (c *USBCamera) Name() string   { return "usb" }
func (c *USBCamera) Prefix() string { return "USB-Cam" }
func (c *USBCamera) Dir() string    { return c.cfg.Dir }

// Device returns the resolved device path, empty while closed.
func (c *USBCamera) Device() string { return c.device }

// Open resolves the device node for the configured webcam.
func (c *USBCamera) Open(ctx context.Context) error {
	stdout, stderr, err := c.runner.Run(ctx, "v4l2-ctl", "--list-devices")
	if err != nil {
		return commandError("listing video devices", err, stderr)
	}
	m := c.pattern.FindStringSubmatch(stdout)
	if m == nil {
		return fmt.Errorf("%w: %q in v4l2-ctl output:\n%s", ErrDeviceNotFound, c.cfg.DeviceName, stdout)
	}
	c.device = m[1]
	return nil
}

func (c *USBCamera) Capture(ctx context.Context, path string) error {
	if c.device == "" {
		return ErrNotOpen
	}
	_, stderr, err := c.runner.Run(ctx, "fswebcam",
		"-d", c.device,
		"-r", c.cfg.Resolution,
		"-S", strconv.Itoa(c.cfg.SkipFrames),
		"--no-banner",
		path,
	)
	if err != nil {
		return commandError("running fswebcam", err, stderr)
	}
	return nil
}

func (c *USBCamera) Close() error {
	c.device = ""
	return nil
}
