package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-irbridge/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// pointWriter is the part of the non-blocking WriteAPI the client uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
	Errors() <-chan error
}

// server is the part of influxdb2.Client the client uses.
type server interface {
	Ping(ctx context.Context) (bool, error)
	Close()
}

// Client writes the bridge's history points to an InfluxDB v2 bucket.
//
// Writes never block the caller: points are batched by the library and
// flushed in the background. Batch failures arrive through SetOnError.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Writes after Close are dropped.
type Client struct {
	server server
	writer pointWriter
	now    func() time.Time

	closed atomic.Bool

	mu      sync.RWMutex
	onError func(err error)
}

// Connect pings the server and prepares a batched writer for the configured
// org and bucket. Every point carries a site tag.
//
// Parameters:
//   - cfg: InfluxDB settings
//   - site: Installation ID written as the "site" tag (omitted when empty)
//
// Returns:
//   - *Client: Ready client
//   - error: ErrDisabled, or ErrConnectionFailed when the server is unreachable
func Connect(cfg config.InfluxDBConfig, site string) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(batchSize(cfg.BatchSize)).
		SetFlushInterval(flushIntervalMillis(cfg.FlushInterval))
	if site != "" {
		opts = opts.AddDefaultTag("site", site)
	}
	srv := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	healthy, err := srv.Ping(ctx)
	switch {
	case err != nil:
		srv.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	case !healthy:
		srv.Close()
		return nil, fmt.Errorf("%w: server reports unhealthy", ErrConnectionFailed)
	}

	return newClient(srv, srv.WriteAPI(cfg.Org, cfg.Bucket)), nil
}

// newClient wires a client around a server and writer and starts relaying
// batch errors.
func newClient(srv server, w pointWriter) *Client {
	c := &Client{server: srv, writer: w, now: time.Now}
	go c.relayErrors(w.Errors())
	return c
}

func batchSize(n int) uint {
	if n <= 0 {
		return defaultBatchSize
	}
	return uint(n)
}

func flushIntervalMillis(seconds int) uint {
	d := defaultFlushInterval
	if seconds > 0 {
		d = time.Duration(seconds) * time.Second
	}
	return uint(d.Milliseconds())
}

func (c *Client) relayErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		fn := c.onError
		c.mu.RUnlock()
		if fn != nil {
			fn(err)
		}
	}
}

// SetOnError installs the callback for failed batch writes.
func (c *Client) SetOnError(fn func(err error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// write queues p unless the client is closed.
func (c *Client) write(p *write.Point) {
	if c.closed.Load() {
		return
	}
	c.writer.WritePoint(p)
}

// Flush sends buffered points now. It does nothing after Close.
func (c *Client) Flush() {
	if c.closed.Load() {
		return
	}
	c.writer.Flush()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := c.server.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check: server reports unhealthy")
	}
	return nil
}

// Close flushes buffered points and releases the connection. Later calls
// do nothing.
func (c *Client) Close() error {
	if c == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writer.Flush()
	c.server.Close()
	return nil
}
