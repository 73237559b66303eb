package server

import (
	"os"
	"time"

	"github.com/seamd/seamd/internal/ipc"
	"github.com/seamd/seamd/internal/logger"
)

// collectInfo gathers the full info tree, one namespace per
// subsystem. Runs on the loop goroutine.
func (s *Server) collectInfo() map[string]any {
	return map[string]any{
		"server":   s.serverInfo(),
		"keyboard": s.keyboard.Info(),
		"display":  s.display.Info(),
		"cursor":   s.cursors.Info(),
		"clients":  s.registry.Info(),
	}
}

func (s *Server) serverInfo() map[string]any {
	hostname, _ := os.Hostname()
	avg := serverLoad()
	info := map[string]any{
		"version":      Version,
		"uuid":         s.uuid,
		"session_name": s.cfg.Server.Name,
		"hostname":     hostname,
		"pid":          os.Getpid(),
		"start_time":   s.started.Unix(),
		"uptime":       int64(time.Since(s.started).Seconds()),
		"load":         []int64{avg[0], avg[1], avg[2]},
	}
	addrs := make([]string, 0, len(s.transports))
	for _, t := range s.transports {
		addrs = append(addrs, t.Addr())
	}
	info["listeners"] = addrs
	if len(s.unknown) > 0 {
		unknown := make(map[string]int64, len(s.unknown))
		for k, v := range s.unknown {
			unknown[k] = v
		}
		info["unknown_packets"] = unknown
	}
	return info
}

// sessionEntries snapshots the connected clients for the control
// socket. Runs on the loop goroutine.
func (s *Server) sessionEntries() []ipc.SessionEntry {
	sources := s.registry.Sources()
	entries := make([]ipc.SessionEntry, 0, len(sources))
	for _, src := range sources {
		entries = append(entries, ipc.SessionEntry{
			UUID:             src.UUID(),
			Address:          src.RemoteAddr(),
			Transport:        src.Transport(),
			UIClient:         src.UIClient(),
			Share:            src.Share(),
			Username:         src.Username(),
			Hostname:         src.Hostname(),
			LatencyMS:        src.Latency(),
			UserEvents:       src.UserEvents(),
			ConnectedSeconds: int64(time.Since(src.ConnectedAt()).Seconds()),
		})
	}
	return entries
}

// HandleInfo serves the info command. It runs on a control socket
// goroutine, so the state is read over on the loop; the timeout
// covers a loop that already stopped.
func (s *Server) HandleInfo() map[string]any {
	reply := make(chan map[string]any, 1)
	s.loop.Post(func() { reply <- s.collectInfo() })
	select {
	case info := <-reply:
		return info
	case <-time.After(controlTimeout):
		logger.Warnf("Warning: info request timed out")
		return map[string]any{
			"server": map[string]any{"version": Version, "uuid": s.uuid},
		}
	}
}

// HandleSessions serves the sessions command.
func (s *Server) HandleSessions() []ipc.SessionEntry {
	reply := make(chan []ipc.SessionEntry, 1)
	s.loop.Post(func() { reply <- s.sessionEntries() })
	select {
	case entries := <-reply:
		return entries
	case <-time.After(controlTimeout):
		logger.Warnf("Warning: sessions request timed out")
		return nil
	}
}

// HandleStop requests a clean shutdown.
func (s *Server) HandleStop() {
	logger.Infof("stop requested over the control socket")
	s.stopOnce.Do(func() { close(s.stopCh) })
}
