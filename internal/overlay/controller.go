package overlay

import (
	"log/slog"
	"sync"
)

// Mode is the overlay's visibility state.
type Mode string

const (
	ModeHidden     Mode = "hidden"
	ModeHighlights Mode = "highlights-only"
	ModeChat       Mode = "chat"
)

// Controller owns the overlay's tri-state lifecycle. Each Toggle advances
// one state around the hidden → highlights-only → chat cycle. Keyboard
// suppression is active exactly while in chat, so the host page's
// shortcuts cannot fire under the user's typing. Suppression is always torn down
// on unmount, never left registered after the overlay is gone.
type Controller struct {
	surface Surface
	logger  *slog.Logger

	mu      sync.Mutex
	mounted bool
	mode    Mode
}

// NewController creates a Controller; nothing is mounted yet.
func NewController(surface Surface, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{surface: surface, logger: logger, mode: ModeHidden}
}

// Mount attaches the rendering surface and enters highlights-only. A
// second call while mounted is a no-op.
func (c *Controller) Mount() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mounted {
		return nil
	}
	if err := c.surface.Mount(); err != nil {
		return err
	}
	c.mounted = true
	c.setModeLocked(ModeHighlights)
	return nil
}

// Unmount releases the rendering surface and forces hidden. Suppression
// teardown happens before the surface goes away.
func (c *Controller) Unmount() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted {
		return nil
	}
	c.setModeLocked(ModeHidden)
	c.mounted = false
	return c.surface.Unmount()
}

// Toggle advances the cycle one state. Unmounted controllers mount first,
// landing on highlights-only.
func (c *Controller) Toggle() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.mounted {
		if err := c.surface.Mount(); err != nil {
			c.logger.Warn("overlay: mount on toggle", "error", err)
			return c.mode
		}
		c.mounted = true
		c.setModeLocked(ModeHighlights)
		return c.mode
	}

	switch c.mode {
	case ModeHidden:
		c.setModeLocked(ModeHighlights)
	case ModeHighlights:
		c.setModeLocked(ModeChat)
	case ModeChat:
		c.setModeLocked(ModeHidden)
	}
	return c.mode
}

// Mode returns the current state.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Mounted reports whether the surface is attached.
func (c *Controller) Mounted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mounted
}

// setModeLocked applies a state change's side effects in a fixed order:
// suppression follows the chat boundary, surface hiding follows hidden.
func (c *Controller) setModeLocked(next Mode) {
	prev := c.mode
	c.mode = next

	if prev == ModeChat && next != ModeChat {
		if err := c.surface.SuppressKeys(false); err != nil {
			c.logger.Warn("overlay: release key suppression", "error", err)
		}
	}
	if next == ModeChat && prev != ModeChat {
		if err := c.surface.SuppressKeys(true); err != nil {
			c.logger.Warn("overlay: enable key suppression", "error", err)
		}
	}

	if err := c.surface.SetHidden(next == ModeHidden); err != nil {
		c.logger.Warn("overlay: set hidden", "error", err)
	}
}
