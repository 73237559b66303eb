package keyboard

import (
	"sort"
	"time"

	"github.com/seamd/seamd/internal/logger"
	"github.com/seamd/seamd/internal/scheduler"
)

// A key force-released by the repeat timeout can be re-pressed by a
// key-repeat packet arriving within this window.
const timedOutGrace = 30 * time.Second

// Repeat delays are clamped to this range before arming the timer.
const (
	minRepeatDelay = 250
	maxRepeatDelay = 1500
)

// State tracks which keycodes are held down on the server and owns the
// single repeat timer. At most one repeat timer exists at any time:
// arming a new one cancels the previous one first.
type State struct {
	clock  scheduler.Clock
	device Device

	// keyed by keycode; the name is kept for log messages
	pressed  map[int]string
	timedOut map[int]time.Time

	repeatTimer    scheduler.Timer
	repeatDelay    int
	repeatInterval int
}

// NewState creates key bookkeeping bound to a device. The device may be
// swapped later with SetDevice.
func NewState(clock scheduler.Clock, device Device) *State {
	return &State{
		clock:          clock,
		device:         device,
		pressed:        make(map[int]string),
		timedOut:       make(map[int]time.Time),
		repeatDelay:    -1,
		repeatInterval: -1,
	}
}

func (s *State) SetDevice(device Device) {
	s.device = device
}

// SetRepeatRate updates the repeat parameters and pushes them to the
// device. Values are stored unclamped; clamping happens when arming.
func (s *State) SetRepeatRate(delay, interval int) {
	s.repeatDelay = delay
	s.repeatInterval = interval
	if s.device == nil {
		return
	}
	if err := s.device.SetRepeatRate(delay, interval); err != nil {
		logger.Warnf("Warning: failed to set keyboard repeat rate %d/%d: %v", delay, interval, err)
	}
}

func (s *State) RepeatDelay() int    { return s.repeatDelay }
func (s *State) RepeatInterval() int { return s.repeatInterval }

// IsPressed reports whether the keycode is currently held.
func (s *State) IsPressed(keycode int) bool {
	_, down := s.pressed[keycode]
	return down
}

// PressedNames returns the names of the held keys, sorted by keycode.
func (s *State) PressedNames() []string {
	keycodes := s.PressedKeycodes()
	names := make([]string, 0, len(keycodes))
	for _, keycode := range keycodes {
		names = append(names, s.pressed[keycode])
	}
	return names
}

func (s *State) PressedKeycodes() []int {
	keycodes := make([]int, 0, len(s.pressed))
	for keycode := range s.pressed {
		keycodes = append(keycodes, keycode)
	}
	sort.Ints(keycodes)
	return keycodes
}

func (s *State) fakeKey(keycode int, press bool) {
	logger.Debugf("fake key %d press=%v", keycode, press)
	if s.device == nil {
		return
	}
	if err := s.device.PressKey(keycode, press); err != nil {
		action := "unpress"
		if press {
			action = "press"
		}
		logger.Errorf("Error: failed to %s key %d: %v", action, keycode, err)
	}
}

// HandleKey does the actual press/unpress for keys, either from a
// key-action packet or from the repeat timeout.
func (s *State) HandleKey(wid int, pressed bool, name string, keyval, keycode int, modifiers []string, isMod, sync bool) {
	logger.Debugf("handle key wid=%d pressed=%v name=%s keyval=%d keycode=%d modifiers=%v is_mod=%v sync=%v",
		wid, pressed, name, keyval, keycode, modifiers, isMod, sync)
	if keycode < 0 {
		logger.Warnf("ignoring invalid keycode=%d", keycode)
		return
	}
	delete(s.timedOut, keycode)

	press := func() {
		logger.Debugf("handle keycode pressing   %3d: key '%s'", keycode, name)
		s.pressed[keycode] = name
		s.fakeKey(keycode, true)
	}
	unpress := func() {
		logger.Debugf("handle keycode unpressing %3d: key '%s'", keycode, name)
		delete(s.pressed, keycode)
		s.fakeKey(keycode, false)
	}

	if pressed {
		if _, down := s.pressed[keycode]; !down {
			press()
			if !sync && !isMod {
				// keyboard is not synced: the client manages its own
				// repeat, so unpress immediately unless this is a
				// modifier (modifiers are kept in sync across packets)
				unpress()
			}
		} else {
			logger.Debugf("handle keycode %d: key %s was already pressed, ignoring", keycode, name)
		}
	} else {
		if _, down := s.pressed[keycode]; down {
			unpress()
		} else {
			logger.Debugf("handle keycode %d: key %s was already unpressed, ignoring", keycode, name)
		}
	}
	if !isMod && sync && s.repeatDelay > 0 && s.repeatInterval > 0 {
		s.ScheduleRepeat(wid, pressed, name, keyval, keycode, modifiers, isMod, s.repeatDelay)
	}
}

// ScheduleRepeat re-arms the repeat timer for a press, or cancels it for
// a release. The initial arm after a press uses the repeat delay; re-arms
// from key-repeat packets use the interval.
func (s *State) ScheduleRepeat(wid int, pressed bool, name string, keyval, keycode int, modifiers []string, isMod bool, delayMS int) {
	s.CancelRepeatTimer()
	if !pressed {
		return
	}
	delayMS = min(maxRepeatDelay, max(minRepeatDelay, delayMS))
	logger.Debugf("scheduling key repeat timer with delay %d for %s / %d", delayMS, name, keycode)
	s.repeatTimer = s.clock.After(time.Duration(delayMS)*time.Millisecond, func() {
		s.repeatTimer = nil
		s.repeatTimeout(wid, name, keyval, keycode, modifiers, isMod)
	})
}

func (s *State) CancelRepeatTimer() {
	if s.repeatTimer != nil {
		s.repeatTimer.Cancel()
		s.repeatTimer = nil
	}
}

// repeatTimeout releases a key whose repeat window elapsed without the
// client confirming it is still held.
func (s *State) repeatTimeout(wid int, name string, keyval, keycode int, modifiers []string, isMod bool) {
	logger.Debugf("key repeat timeout for %s / %d - clearing it", name, keycode)
	s.HandleKey(wid, false, name, keyval, keycode, modifiers, isMod, true)
	s.timedOut[keycode] = s.clock.Now()
}

// RepressTimedOut re-presses a key that the repeat timeout released less
// than the grace window ago. It reports whether the key was re-pressed.
func (s *State) RepressTimedOut(keycode int, name string) bool {
	if _, down := s.pressed[keycode]; down {
		return false
	}
	when, ok := s.timedOut[keycode]
	if ok {
		delete(s.timedOut, keycode)
	}
	if ok && s.clock.Now().Sub(when) < timedOutGrace {
		logger.Debugf("key %d/%s had timed out, re-pressing it", keycode, name)
		s.pressed[keycode] = name
		s.fakeKey(keycode, true)
		return true
	}
	return false
}

// ClearPressed releases every held key and cancels the repeat timer.
// Called on client exit, keymap changes and shutdown.
func (s *State) ClearPressed() {
	logger.Debugf("clearing %d pressed keys", len(s.pressed))
	// make sure the timer doesn't fire and interfere
	s.CancelRepeatTimer()
	if s.device != nil {
		s.device.ClearKeys(s.PressedKeycodes())
	}
	s.pressed = make(map[int]string)
}

// Info reports repeat parameters and held keys.
func (s *State) Info() map[string]any {
	info := map[string]any{
		"repeat": map[string]any{
			"delay":    s.repeatDelay,
			"interval": s.repeatInterval,
		},
		"keys_pressed": s.PressedNames(),
	}
	if s.device != nil {
		info["keycodes-down"] = s.device.KeycodesDown()
		info["layout-group"] = s.device.LayoutGroup()
	}
	return info
}
