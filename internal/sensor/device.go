package sensor

import "context"

// Device is the hardware side of an asynchronous source.
type Device interface {
	Active() bool
	CheckTemperature(ctx context.Context) error
	CheckHumidity(ctx context.Context) error
}

// DeviceSource queries a hardware device. Its answer arrives later through
// Monitor.Deliver, so a successful Poll returns ErrPending.
type DeviceSource struct {
	Device Device
	Kind   Kind
}

// Poll implements Source.
func (s DeviceSource) Poll(ctx context.Context) (Reading, error) {
	if s.Device == nil || !s.Device.Active() {
		return Reading{}, ErrInactive
	}

	var err error
	if s.Kind == KindHumidity {
		err = s.Device.CheckHumidity(ctx)
	} else {
		err = s.Device.CheckTemperature(ctx)
	}
	if err != nil {
		return Reading{}, err
	}
	return Reading{}, ErrPending
}
