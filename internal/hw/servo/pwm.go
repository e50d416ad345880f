package servo

import (
	"fmt"

	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/hw/gpio"
)

// pwmClockHz gives one PWM tick per microsecond.
const pwmClockHz = 1_000_000

// PWMDriver drives hobby servos from the hardware PWM pins of a GPIO driver.
type PWMDriver struct {
	gpio     gpio.Driver
	outputs  map[Channel]Output
	periodUs uint32
}

// NewPWMDriver configures every output pin for PWM at periodHz.
func NewPWMDriver(drv gpio.Driver, periodHz int, outputs map[Channel]Output) (*PWMDriver, error) {
	if periodHz <= 0 {
		return nil, fmt.Errorf("invalid PWM period: %d Hz", periodHz)
	}
	for ch, out := range outputs {
		if err := drv.SetupPWM(out.Address, pwmClockHz); err != nil {
			return nil, fmt.Errorf("setup %s on pin %d: %w", ch, out.Address, err)
		}
	}
	return &PWMDriver{
		gpio:     drv,
		outputs:  outputs,
		periodUs: uint32(pwmClockHz / periodHz),
	}, nil
}

func (d *PWMDriver) SetAngle(ch Channel, deg int) error {
	out, err := lookup(d.outputs, ch)
	if err != nil {
		return err
	}
	pulse := PulseWidthUs(deg, out.MinPulseUs, out.MaxPulseUs)
	debug.Trace("%s -> %d deg (%d us)", ch, deg, pulse)
	return d.gpio.WritePWM(out.Address, uint32(pulse), d.periodUs)
}

// Close releases the GPIO driver.
func (d *PWMDriver) Close() error {
	return d.gpio.Close()
}
