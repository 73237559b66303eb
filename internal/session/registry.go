package session

import (
	"github.com/seamd/seamd/internal/cursor"
	"github.com/seamd/seamd/internal/display"
	"github.com/seamd/seamd/internal/keyboard"
	"github.com/seamd/seamd/internal/logger"
)

// Registry tracks connected sources in connection order and answers
// the capability queries the subsystems route through it. Like the
// sources themselves it is owned by the scheduler goroutine.
type Registry struct {
	sources []*Source
}

// Compile-time checks for the registry views the subsystems consume.
var (
	_ keyboard.Registry = (*Registry)(nil)
	_ display.Registry  = (*Registry)(nil)
	_ cursor.Registry   = (*Registry)(nil)
)

func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends a freshly accepted source.
func (r *Registry) Add(src *Source) {
	r.sources = append(r.sources, src)
	logger.Debugf("registered connection from %s (%d total)", src.RemoteAddr(), len(r.sources))
}

// Remove drops a source, keeping the order of the rest.
func (r *Registry) Remove(src *Source) {
	for i, s := range r.sources {
		if s == src {
			r.sources = append(r.sources[:i], r.sources[i+1:]...)
			logger.Debugf("unregistered %s (%d remaining)", src.ID(), len(r.sources))
			return
		}
	}
}

// Get finds a source by uuid, nil when unknown.
func (r *Registry) Get(uuid string) *Source {
	for _, s := range r.sources {
		if s.uuid == uuid {
			return s
		}
	}
	return nil
}

// Sources returns a snapshot in connection order, safe to range over
// while handlers disconnect entries.
func (r *Registry) Sources() []*Source {
	out := make([]*Source, len(r.sources))
	copy(out, r.sources)
	return out
}

func (r *Registry) Count() int {
	return len(r.sources)
}

// UIClients lists the sources that completed the handshake as UI
// clients, in connection order.
func (r *Registry) UIClients() []*Source {
	var out []*Source
	for _, s := range r.sources {
		if s.UIClient() {
			out = append(out, s)
		}
	}
	return out
}

// ShareCount is the number of UI clients already in the session, the
// quantity the hello contention rule is computed from.
func (r *Registry) ShareCount() int {
	return len(r.UIClients())
}

// OtherUIClients returns the uuids of UI clients besides the one given.
func (r *Registry) OtherUIClients(uuid string) []string {
	var out []string
	for _, s := range r.sources {
		if s.UIClient() && s.uuid != uuid {
			out = append(out, s.uuid)
		}
	}
	return out
}

// DisplaySources lists the UI clients as the geometry negotiator's
// view.
func (r *Registry) DisplaySources() []display.Source {
	var out []display.Source
	for _, s := range r.sources {
		if s.UIClient() {
			out = append(out, s)
		}
	}
	return out
}

// CursorSinks lists the connections that asked for cursor updates.
func (r *Registry) CursorSinks() []cursor.Sink {
	var out []cursor.Sink
	for _, s := range r.sources {
		if s.WantsCursors() {
			out = append(out, s)
		}
	}
	return out
}

// Info reports the client roster for the info subsystem.
func (r *Registry) Info() map[string]any {
	entries := make([]map[string]any, 0, len(r.sources))
	for _, s := range r.sources {
		entries = append(entries, s.Info())
	}
	return map[string]any{
		"count":      len(r.sources),
		"ui_clients": len(r.UIClients()),
		"entries":    entries,
	}
}
