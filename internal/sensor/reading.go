package sensor

import "context"

// Kind selects which quantity a monitor tracks.
type Kind string

const (
	KindTemperature Kind = "temperature"
	KindHumidity    Kind = "humidity"
)

// Reading is one sample from a source. Nil fields were not measured.
type Reading struct {
	Temperature *float64
	Humidity    *float64
	Battery     *float64
}

// Value returns the quantity of the given kind.
func (r Reading) Value(kind Kind) (float64, bool) {
	var p *float64
	switch kind {
	case KindTemperature:
		p = r.Temperature
	case KindHumidity:
		p = r.Humidity
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// with returns a copy of r with the quantity of kind replaced.
func (r Reading) with(kind Kind, v float64) Reading {
	switch kind {
	case KindTemperature:
		r.Temperature = &v
	case KindHumidity:
		r.Humidity = &v
	}
	return r
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Source produces readings on demand.
type Source interface {
	Poll(ctx context.Context) (Reading, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Reading, error)

// Poll implements Source.
func (f SourceFunc) Poll(ctx context.Context) (Reading, error) {
	return f(ctx)
}
