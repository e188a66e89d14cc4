package connectivity

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultProbeInterval is how often the probe re-checks reachability.
	DefaultProbeInterval = 30 * time.Second

	probeTimeout = 5 * time.Second
)

// Probe is a Provider that decides connectivity by polling an HTTP endpoint.
// Any HTTP response counts as online; only transport failures count as
// offline (a 500 from the server still proves the network path).
type Probe struct {
	url      string
	interval time.Duration
	client   *http.Client
	state    *Manual

	stop chan struct{}
	done chan struct{}
}

// NewProbe creates a probe against url. The probe starts offline until the
// first check; call Check for a synchronous answer or Start for the poll
// loop.
func NewProbe(url string, interval time.Duration) *Probe {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Probe{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: probeTimeout},
		state:    NewManual(false),
	}
}

// IsOnline implements Provider.
func (p *Probe) IsOnline() bool {
	return p.state.IsOnline()
}

// Subscribe implements Provider.
func (p *Probe) Subscribe(fn func(online bool)) (cancel func()) {
	return p.state.Subscribe(fn)
}

// Check performs one synchronous probe and updates the state.
func (p *Probe) Check() bool {
	online := p.probe()
	p.state.SetOnline(online)
	return online
}

// Start launches the poll loop. It probes immediately, then on the interval,
// until Stop is called.
func (p *Probe) Start() {
	if p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		p.Check()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.Check()
			case <-p.stop:
				return
			}
		}
	}()
}

// Stop halts the poll loop and waits for it to exit.
func (p *Probe) Stop() {
	if p.stop == nil {
		return
	}
	close(p.stop)
	<-p.done
	p.stop = nil
	p.done = nil
}

func (p *Probe) probe() bool {
	resp, err := p.client.Head(p.url)
	if err != nil {
		slog.Debug("connectivity: probe failed", "url", p.url, "err", err)
		return false
	}
	resp.Body.Close()
	return true
}
