package camera

import (
	"context"
	"fmt"
	"strconv"
)

// RibbonConfig configures a RibbonCamera.
type RibbonConfig struct {
	Dir     string
	Command string // libcamera-still or rpicam-still
	Width   int
	Height  int
}

// RibbonCamera captures from the Raspberry Pi CSI camera.
type RibbonCamera struct {
	cfg    RibbonConfig
	runner Runner
	path   string
}

// NewRibbonCamera returns a closed ribbon camera.
func NewRibbonCamera(cfg RibbonConfig, runner Runner) *RibbonCamera {
	if cfg.Command == "" {
		cfg.Command = "libcamera-still"
	}
	return &RibbonCamera{cfg: cfg, runner: runner}
}

func (c *RibbonCamera) Name() string   { return "ribbon" }
func (c *RibbonCamera) Prefix() string { return "Ribbon-Cam" }
func (c *RibbonCamera) Dir() string    { return c.cfg.Dir }

// Open checks the capture command is installed.
func (c *RibbonCamera) Open(_ context.Context) error {
	p, err := c.runner.LookPath(c.cfg.Command)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDeviceNotFound, c.cfg.Command, err)
	}
	c.path = p
	return nil
}

func (c *RibbonCamera) Capture(ctx context.Context, path string) error {
	if c.path == "" {
		return ErrNotOpen
	}
	_, stderr, err := c.runner.Run(ctx, c.path,
		"-n",
		"-t", "1",
		"--width", strconv.Itoa(c.cfg.Width),
		"--height", strconv.Itoa(c.cfg.Height),
		"-o", path,
	)
	if err != nil {
		return commandError("running "+c.cfg.Command, err, stderr)
	}
	return nil
}

func (c *RibbonCamera) Close() error {
	c.path = ""
	return nil
}
