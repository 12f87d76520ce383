package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/coder/websocket"
)

// Dispatcher receives room-job assignments from the gateway. The platform
// creates one job per room that requests a proctor; the worker runs one exam
// session per job.
type Dispatcher struct {
	ws   *websocket.Conn
	jobs chan string

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// Dispatch dials the gateway's job endpoint and returns a Dispatcher whose
// Jobs channel emits room names as the platform assigns them. The ctx governs
// the dial only; call [Dispatcher.Close] to stop receiving jobs.
func (p *Platform) Dispatch(ctx context.Context) (*Dispatcher, error) {
	u, err := url.JoinPath(p.baseURL, "jobs")
	if err != nil {
		return nil, fmt.Errorf("gateway: build jobs url: %w", err)
	}
	u += "?identity=" + url.QueryEscape(p.identity)

	headers := http.Header{}
	if p.token != "" {
		headers.Set("Authorization", "Bearer "+p.token)
	}

	ws, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("gateway: dial jobs: %w", err)
	}

	d := &Dispatcher{
		ws:   ws,
		jobs: make(chan string, 8),
		done: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.readLoop()
	return d, nil
}

// Jobs returns the channel of assigned room names. The channel is closed when
// the dispatcher shuts down.
func (d *Dispatcher) Jobs() <-chan string { return d.jobs }

// Close stops the dispatcher and closes the Jobs channel.
func (d *Dispatcher) Close() error {
	d.once.Do(func() {
		close(d.done)
		d.ws.Close(websocket.StatusNormalClosure, "worker shutting down")
		d.wg.Wait()
		close(d.jobs)
	})
	return nil
}

// readLoop receives job envelopes until the socket closes.
func (d *Dispatcher) readLoop() {
	defer d.wg.Done()
	for {
		_, msg, err := d.ws.Read(context.Background())
		if err != nil {
			return
		}

		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			slog.Warn("gateway: bad job frame", "err", err)
			continue
		}
		if env.Type != typeJob || env.Room == "" {
			continue
		}

		select {
		case d.jobs <- env.Room:
		case <-d.done:
			return
		}
	}
}
