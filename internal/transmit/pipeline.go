package transmit

import (
	"context"

	"github.com/nerrad567/gray-logic-irbridge/internal/delay"
)

// Sender is the hardware transport. Sends are fire-and-forget writes; the
// shared transport is not locked across accessories.
type Sender interface {
	Send(ctx context.Context, host, code string) error
}

// Logger is the subset of logging used by the pipeline.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Observer is notified of every transmit attempt.
type Observer interface {
	ObserveTransmit(accessory string, err error)
}

// Options configures a Pipeline.
type Options struct {
	// Name is the accessory name used in logs and metrics.
	Name string

	// Host identifies the target device on the transport. Empty selects the
	// transport's default device.
	Host string

	Sender   Sender
	Logger   Logger
	Observer Observer

	// Sleep overrides the pacing wait. Nil means delay.Sleep.
	Sleep delay.SleepFunc
}

// Pipeline serialises the paced transmissions of one accessory.
type Pipeline struct {
	name     string
	host     string
	sender   Sender
	logger   Logger
	observer Observer
	sleep    delay.SleepFunc

	slot delay.Slot
}

// New creates a Pipeline. A nil Logger discards log output.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		name:     opts.Name,
		host:     opts.Host,
		sender:   opts.Sender,
		logger:   opts.Logger,
		observer: opts.Observer,
		sleep:    opts.Sleep,
	}
	if p.logger == nil {
		p.logger = nopLogger{}
	}
	if p.sleep == nil {
		p.sleep = delay.Sleep
	}
	return p
}

// Host returns the target device identifier.
func (p *Pipeline) Host() string {
	return p.host
}

// Send transmits payload and returns once every step has been issued or the
// sequence was cancelled.
//
// A bare code goes out immediately and leaves any in-flight sequence alone.
// A sequence first cancels the in-flight sequence of this pipeline.
func (p *Pipeline) Send(ctx context.Context, payload Payload) {
	if payload.IsZero() {
		p.logger.Debug("no code to send", "accessory", p.name)
		return
	}

	if !payload.IsSequence() {
		p.transmit(ctx, payload.Code)
		return
	}

	ctx, release := p.slot.Begin(ctx)
	defer release()

	for _, step := range payload.Steps {
		repeats := step.Repeats()
		for i := 0; i < repeats; i++ {
			if ctx.Err() != nil {
				p.logger.Debug("sequence cancelled", "accessory", p.name)
				return
			}
			p.transmit(ctx, step.Code)

			if i < repeats-1 {
				if err := p.sleep(ctx, step.RepeatInterval()); err != nil {
					p.logger.Debug("sequence cancelled", "accessory", p.name)
					return
				}
			}
		}

		if step.Pause > 0 {
			if err := p.sleep(ctx, delay.Seconds(step.Pause)); err != nil {
				p.logger.Debug("sequence cancelled", "accessory", p.name)
				return
			}
		}
	}
}

// Reset cancels the in-flight sequence, if any.
func (p *Pipeline) Reset() {
	p.slot.Cancel()
}

// Busy reports whether a sequence is in flight.
func (p *Pipeline) Busy() bool {
	return p.slot.Active()
}

func (p *Pipeline) transmit(ctx context.Context, code string) {
	if code == "" {
		p.logger.Debug("skipping empty code", "accessory", p.name)
		return
	}

	p.logger.Info("transmitting code", "accessory", p.name, "host", p.host, "code", code)

	var err error
	if p.sender == nil {
		err = ErrNoSender
	} else {
		err = p.sender.Send(ctx, p.host, code)
	}
	if err != nil {
		p.logger.Warn("transmit failed", "accessory", p.name, "host", p.host, "error", err)
	}
	if p.observer != nil {
		p.observer.ObserveTransmit(p.name, err)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
