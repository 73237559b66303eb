// Package wlrrandr drives wlroots compositors through the wlr-randr
// tool. It is the display backend for Wayland hosts, where no EWMH
// surface exists: mode queries and switching work, desktop bookkeeping
// stays with the compositor.
package wlrrandr

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/seamd/seamd/internal/logger"
)

// output is one compositor head as wlr-randr reports it.
type output struct {
	Name     string
	X, Y     int
	W, H     int
	WMM, HMM int
	Scale    float64
	Modes    [][2]int
}

// Backend implements display.Backend on top of the wlr-randr tool.
type Backend struct {
	env []string // non-nil when running under sudo

	mu      sync.Mutex
	outputs []output
}

// New probes for wlr-randr and queries the compositor once; it fails
// when the tool is missing or no output is enabled.
func New() (*Backend, error) {
	if _, err := exec.LookPath("wlr-randr"); err != nil {
		return nil, fmt.Errorf("wlr-randr not found: %w", err)
	}
	b := &Backend{env: sudoEnv()}
	if err := b.refresh(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) Name() string { return "wlr-randr" }

// RootSize reports the bounding box of all enabled outputs.
func (b *Backend) RootSize() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var w, h int
	for _, o := range b.outputs {
		w = max(w, o.X+o.W)
		h = max(h, o.Y+o.H)
	}
	return w, h
}

// BitDepth is not queryable through wlr-randr; compositors render
// 8 bits per channel.
func (b *Backend) BitDepth() int { return 24 }

// ScreenSizes lists the modes of the primary output.
func (b *Backend) ScreenSizes() [][2]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.primary()
	if o == nil {
		return nil
	}
	return append([][2]int(nil), o.Modes...)
}

func (b *Backend) ExactResize() bool { return false }

// AddScreenSize asks the compositor for a custom mode. Not every
// compositor honours it; the caller falls back to the closest listed
// mode when this fails.
func (b *Backend) AddScreenSize(w, h int) error {
	b.mu.Lock()
	name := ""
	if o := b.primary(); o != nil {
		name = o.Name
	}
	b.mu.Unlock()
	if name == "" {
		return fmt.Errorf("no enabled output")
	}
	if err := b.run("--output", name, "--custom-mode", fmt.Sprintf("%dx%d", w, h)); err != nil {
		return err
	}
	return b.refresh()
}

// SetScreenSize switches the primary output to the given mode.
func (b *Backend) SetScreenSize(w, h int) error {
	b.mu.Lock()
	name := ""
	if o := b.primary(); o != nil {
		name = o.Name
	}
	b.mu.Unlock()
	if name == "" {
		return fmt.Errorf("no enabled output")
	}
	if err := b.run("--output", name, "--mode", fmt.Sprintf("%dx%d", w, h)); err != nil {
		return err
	}
	return b.refresh()
}

// SizeMM reports the physical size of the primary output.
func (b *Backend) SizeMM() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o := b.primary(); o != nil {
		return o.WMM, o.HMM
	}
	return 0, 0
}

// SetPhysicalSize cannot be done here; the compositor reads EDID.
func (b *Backend) SetPhysicalSize(wmm, hmm int) error {
	return fmt.Errorf("physical size is fixed by the compositor")
}

// The compositor owns desktop geometry, workareas and workspaces, so
// these publish nothing and report success.

func (b *Backend) SetDesktopGeometry(w, h int) error { return nil }

func (b *Backend) SetWorkarea(x, y, w, h int) error { return nil }

func (b *Backend) SetDesktops(count int, names []string) error { return nil }

// Ungrab is meaningless on Wayland: clients cannot hold global grabs.
func (b *Backend) Ungrab() {}

// Screenshot captures the display with grim when it is installed.
func (b *Backend) Screenshot() (int, int, []byte, error) {
	if _, err := exec.LookPath("grim"); err != nil {
		return 0, 0, nil, fmt.Errorf("screen capture needs grim: %w", err)
	}
	cmd := exec.Command("grim", "-t", "png", "-")
	if b.env != nil {
		cmd.Env = b.env
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	if err := cmd.Run(); err != nil {
		return 0, 0, nil, fmt.Errorf("grim failed: %w", err)
	}
	data := buf.Bytes()
	w, h, err := pngSize(data)
	if err != nil {
		return 0, 0, nil, err
	}
	return w, h, data, nil
}

// primary picks the output at the origin, or the first one. Callers
// hold b.mu.
func (b *Backend) primary() *output {
	for i := range b.outputs {
		if b.outputs[i].X == 0 && b.outputs[i].Y == 0 {
			return &b.outputs[i]
		}
	}
	if len(b.outputs) > 0 {
		return &b.outputs[0]
	}
	return nil
}

// refresh re-queries the compositor. JSON output is preferred; older
// wlr-randr builds only emit text.
func (b *Backend) refresh() error {
	outputs, err := b.query()
	if err != nil {
		return err
	}
	if len(outputs) == 0 {
		return fmt.Errorf("no enabled outputs")
	}
	b.mu.Lock()
	b.outputs = outputs
	b.mu.Unlock()
	return nil
}

func (b *Backend) query() ([]output, error) {
	raw, err := b.capture("--json")
	if err == nil {
		if outputs, jerr := parseJSON(raw); jerr == nil {
			return outputs, nil
		}
		logger.Debug("wlr-randr JSON output not understood, parsing text")
	}
	raw, err = b.capture()
	if err != nil {
		return nil, err
	}
	return parseText(string(raw)), nil
}

func (b *Backend) run(args ...string) error {
	cmd := exec.Command("wlr-randr", args...)
	if b.env != nil {
		cmd.Env = b.env
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("wlr-randr %s: %v: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (b *Backend) capture(args ...string) ([]byte, error) {
	cmd := exec.Command("wlr-randr", args...)
	if b.env != nil {
		cmd.Env = b.env
	}
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("wlr-randr failed: %w", err)
	}
	return out, nil
}

// sudoEnv rebuilds the session environment when running under sudo,
// which strips XDG_RUNTIME_DIR and WAYLAND_DISPLAY.
func sudoEnv() []string {
	sudoUser := os.Getenv("SUDO_USER")
	if sudoUser == "" || os.Geteuid() != 0 {
		return nil
	}
	uid := os.Getenv("SUDO_UID")
	if uid == "" {
		if out, err := exec.Command("id", "-u", sudoUser).Output(); err == nil {
			uid = strings.TrimSpace(string(out))
		}
	}
	if uid == "" {
		return nil
	}
	runtimeDir := fmt.Sprintf("/run/user/%s", uid)
	env := append(os.Environ(), "XDG_RUNTIME_DIR="+runtimeDir)

	display := os.Getenv("WAYLAND_DISPLAY")
	if display == "" {
		if files, err := os.ReadDir(runtimeDir); err == nil {
			for _, f := range files {
				name := f.Name()
				if strings.HasPrefix(name, "wayland-") && !strings.HasSuffix(name, ".lock") {
					display = name
					break
				}
			}
		}
	}
	if display == "" {
		logger.Warnf("Warning: could not find the Wayland socket for %s", sudoUser)
		return env
	}
	return append(env, "WAYLAND_DISPLAY="+display)
}

// parseJSON decodes `wlr-randr --json`: an array of heads, each with a
// mode list flagging the current one.
func parseJSON(data []byte) ([]output, error) {
	var heads []struct {
		Name         string  `json:"name"`
		Enabled      bool    `json:"enabled"`
		Scale        float64 `json:"scale"`
		PhysicalSize struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"physical_size"`
		Position struct {
			X int `json:"x"`
			Y int `json:"y"`
		} `json:"position"`
		Modes []struct {
			Width     int  `json:"width"`
			Height    int  `json:"height"`
			Preferred bool `json:"preferred"`
			Current   bool `json:"current"`
		} `json:"modes"`
	}
	if err := json.Unmarshal(data, &heads); err != nil {
		return nil, err
	}

	var outputs []output
	for _, head := range heads {
		if !head.Enabled {
			continue
		}
		o := output{
			Name:  head.Name,
			X:     head.Position.X,
			Y:     head.Position.Y,
			WMM:   head.PhysicalSize.Width,
			HMM:   head.PhysicalSize.Height,
			Scale: head.Scale,
		}
		if o.Scale == 0 {
			o.Scale = 1.0
		}
		preferred := [2]int{}
		for _, m := range head.Modes {
			size := [2]int{m.Width, m.Height}
			if !containsSize(o.Modes, size) {
				o.Modes = append(o.Modes, size)
			}
			if m.Current {
				o.W, o.H = m.Width, m.Height
			}
			if m.Preferred {
				preferred = size
			}
		}
		// no current flag: fall back to the preferred or first mode
		if o.W == 0 {
			if preferred != ([2]int{}) {
				o.W, o.H = preferred[0], preferred[1]
			} else if len(o.Modes) > 0 {
				o.W, o.H = o.Modes[0][0], o.Modes[0][1]
			}
		}
		if o.W == 0 || o.H == 0 {
			logger.Warnf("Warning: skipping output %s with no usable mode", head.Name)
			continue
		}
		outputs = append(outputs, o)
	}
	return outputs, nil
}

// parseText handles the plain listing from older wlr-randr builds:
// output names flush left, indented attribute and mode lines below.
func parseText(text string) []output {
	var outputs []output
	var cur *output
	enabled := true

	flush := func() {
		if cur != nil && enabled && cur.W > 0 {
			outputs = append(outputs, *cur)
		}
		cur, enabled = nil, true
	}

	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		if line[0] != ' ' && line[0] != '\t' {
			flush()
			fields := strings.Fields(line)
			if len(fields) > 0 {
				cur = &output{Name: fields[0], Scale: 1.0}
			}
			continue
		}
		if cur == nil {
			continue
		}
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Enabled:"):
			enabled = strings.Contains(trimmed, "yes")
		case strings.HasPrefix(trimmed, "Position:"):
			fmt.Sscanf(strings.TrimPrefix(trimmed, "Position:"), "%d,%d", &cur.X, &cur.Y)
		case strings.HasPrefix(trimmed, "Physical size:"):
			fmt.Sscanf(strings.TrimPrefix(trimmed, "Physical size:"), "%dx%d mm", &cur.WMM, &cur.HMM)
		case strings.HasPrefix(trimmed, "Scale:"):
			fmt.Sscanf(strings.TrimPrefix(trimmed, "Scale:"), "%f", &cur.Scale)
		case strings.Contains(trimmed, " px"):
			var w, h int
			if _, err := fmt.Sscanf(trimmed, "%dx%d px", &w, &h); err == nil && w > 0 {
				size := [2]int{w, h}
				if !containsSize(cur.Modes, size) {
					cur.Modes = append(cur.Modes, size)
				}
				if strings.Contains(trimmed, "current") {
					cur.W, cur.H = w, h
				}
			}
		}
	}
	flush()
	return outputs
}

func containsSize(sizes [][2]int, size [2]int) bool {
	for _, s := range sizes {
		if s == size {
			return true
		}
	}
	return false
}

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// pngSize reads the dimensions from a PNG IHDR header.
func pngSize(data []byte) (int, int, error) {
	if len(data) < 24 || !bytes.HasPrefix(data, pngMagic) {
		return 0, 0, fmt.Errorf("not a PNG image")
	}
	w := binary.BigEndian.Uint32(data[16:20])
	h := binary.BigEndian.Uint32(data[20:24])
	return int(w), int(h), nil
}
