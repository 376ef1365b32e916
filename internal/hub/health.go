package hub

import (
	"os"
	"runtime"
	"time"

	"github.com/call-deck/backend/internal/session"
	"github.com/call-deck/backend/internal/stream"
	"github.com/shirou/gopsutil/v3/process"
)

// UpstreamStatus reports the switch feed's connection state and dropped
// frame count.
type UpstreamStatus interface {
	State() stream.ConnState
	ProtocolErrors() int64
}

type healthProbe struct {
	startedAt time.Time
	proc      *process.Process
	upstream  UpstreamStatus // nil when running without a feed (mock mode)
}

func newHealthProbe() *healthProbe {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		p = nil
	}
	return &healthProbe{
		startedAt: time.Now(),
		proc:      p,
	}
}

type healthReport struct {
	Status         string  `json:"status"`
	UptimeSeconds  int64   `json:"uptimeSeconds"`
	Goroutines     int     `json:"goroutines"`
	RSSBytes       uint64  `json:"rssBytes,omitempty"`
	CPUPercent     float64 `json:"cpuPercent,omitempty"`
	LiveSessions   int     `json:"liveSessions"`
	ActiveSessions int     `json:"activeSessions"`
	Consoles       int     `json:"consoles"`
	Upstream       string  `json:"upstream"`
	ProtocolErrors int64   `json:"protocolErrors"`
}

func (h *healthProbe) report(registry *session.Registry, b *Broadcaster) healthReport {
	rep := healthReport{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(h.startedAt).Seconds()),
		Goroutines:     runtime.NumGoroutine(),
		LiveSessions:   registry.Count(),
		ActiveSessions: registry.ActiveCount(),
		Consoles:       b.ClientCount(),
		Upstream:       b.Upstream().String(),
	}

	if h.proc != nil {
		if mem, err := h.proc.MemoryInfo(); err == nil && mem != nil {
			rep.RSSBytes = mem.RSS
		}
		if cpu, err := h.proc.CPUPercent(); err == nil {
			rep.CPUPercent = cpu
		}
	}

	if h.upstream != nil {
		rep.Upstream = h.upstream.State().String()
		rep.ProtocolErrors = h.upstream.ProtocolErrors()
	}

	return rep
}
