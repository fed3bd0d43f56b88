package network

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gyazemon/internal/logging"
)

const PingTimeout = 3 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPPinger sends HEAD to URL. Any HTTP response counts as reachable.
type HTTPPinger struct {
	Client *http.Client
	URL    string
}

func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return err
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Prober periodically pings and feeds the result into a Monitor.
type Prober struct {
	pinger   Pinger
	monitor  *Monitor
	interval time.Duration
	logger   logging.Logger
}

func NewProber(p Pinger, m *Monitor, interval time.Duration, logger logging.Logger) *Prober {
	return &Prober{pinger: p, monitor: m, interval: interval, logger: logger}
}

// Run probes once right away and then on every tick until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	p.probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Prober) probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, PingTimeout)
	err := p.pinger.Ping(pctx)
	cancel()

	if ctx.Err() != nil {
		return
	}

	online := err == nil
	if online != p.monitor.Online() {
		if online {
			p.logger.Info(ctx, "network is online")
		} else {
			p.logger.Warn(ctx, "network is offline", "error", err)
		}
	}
	p.monitor.Set(online)
}
