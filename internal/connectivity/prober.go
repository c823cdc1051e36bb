package connectivity

import (
	"context"
	"net/http"
	"time"
)

// Prober периодически опрашивает health-эндпоинт бэкенда и двигает Signal.
// Это замена браузерному индикатору доступности сети: ложноположительный
// "online" (например, за captive portal) — принятое ограничение.
type Prober struct {
	signal   *Signal
	client   *http.Client
	url      string
	interval time.Duration
}

func NewProber(signal *Signal, healthURL string, interval time.Duration, timeout time.Duration) *Prober {
	return &Prober{
		signal:   signal,
		client:   &http.Client{Timeout: timeout},
		url:      healthURL,
		interval: interval,
	}
}

// Run опрашивает до отмены контекста; первый замер делается сразу
func (p *Prober) Run(ctx context.Context) {
	p.probe(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *Prober) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.signal.Set(Offline)
		return
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.signal.Set(Offline)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 500 {
		// бэкенд отвечает — связь есть, даже если health вернул 4xx
		p.signal.Set(Online)
	} else {
		p.signal.Set(Offline)
	}
}
