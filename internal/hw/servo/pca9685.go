package servo

import (
	"fmt"
	"time"

	"github.com/cjeanneret/ArmGo/internal/debug"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// PCA9685 registers.
const (
	regMode1    = 0x00
	regLED0OnL  = 0x06
	regPrescale = 0xFE

	mode1Sleep   = 0x10
	mode1AutoInc = 0x20
	mode1Restart = 0x80

	pca9685OscHz  = 25_000_000
	pca9685Steps  = 4096
	pca9685MaxOut = 16
)

// Conn is the register transport of a PCA9685. *i2c.Dev satisfies it.
type Conn interface {
	Tx(w, r []byte) error
}

// PCA9685Driver drives up to 16 servos through a PCA9685 PWM expander.
type PCA9685Driver struct {
	conn     Conn
	closer   func() error
	outputs  map[Channel]Output
	periodUs int
}

// OpenPCA9685 opens the named I2C bus ("" for the first one) and initializes
// the chip at addr.
func OpenPCA9685(busName string, addr int, periodHz int, outputs map[Channel]Output) (*PCA9685Driver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}
	dev := &i2c.Dev{Bus: bus, Addr: uint16(addr)}
	d, err := NewPCA9685(dev, periodHz, outputs)
	if err != nil {
		bus.Close()
		return nil, err
	}
	d.closer = bus.Close
	return d, nil
}

// NewPCA9685 resets the chip behind conn and sets its output frequency.
func NewPCA9685(conn Conn, periodHz int, outputs map[Channel]Output) (*PCA9685Driver, error) {
	if periodHz <= 0 {
		return nil, fmt.Errorf("invalid PWM period: %d Hz", periodHz)
	}
	for ch, out := range outputs {
		if out.Address < 0 || out.Address >= pca9685MaxOut {
			return nil, fmt.Errorf("%s: PCA9685 output %d out of range 0-15", ch, out.Address)
		}
	}

	d := &PCA9685Driver{conn: conn, outputs: outputs, periodUs: 1_000_000 / periodHz}

	prescale := Prescale(periodHz)
	debug.Verbose("PCA9685 init: %d Hz, prescale %d", periodHz, prescale)

	steps := [][]byte{
		{regMode1, mode1Sleep},
		{regPrescale, prescale},
		{regMode1, mode1AutoInc},
	}
	for _, w := range steps {
		if err := d.conn.Tx(w, nil); err != nil {
			return nil, fmt.Errorf("pca9685 init: %w", err)
		}
	}
	// Oscillator needs 500us after leaving sleep before restart.
	time.Sleep(time.Millisecond)
	if err := d.conn.Tx([]byte{regMode1, mode1AutoInc | mode1Restart}, nil); err != nil {
		return nil, fmt.Errorf("pca9685 restart: %w", err)
	}
	return d, nil
}

// Prescale returns the PRESCALE register value for an output frequency.
func Prescale(periodHz int) byte {
	v := (pca9685OscHz+pca9685Steps*periodHz/2)/(pca9685Steps*periodHz) - 1
	if v < 3 {
		v = 3
	}
	if v > 255 {
		v = 255
	}
	return byte(v)
}

func (d *PCA9685Driver) SetAngle(ch Channel, deg int) error {
	out, err := lookup(d.outputs, ch)
	if err != nil {
		return err
	}
	pulse := PulseWidthUs(deg, out.MinPulseUs, out.MaxPulseUs)
	off := pulse * pca9685Steps / d.periodUs
	if off >= pca9685Steps {
		off = pca9685Steps - 1
	}
	debug.PWM("LED", out.Address, off)
	reg := byte(regLED0OnL + 4*out.Address)
	return d.conn.Tx([]byte{reg, 0, 0, byte(off), byte(off >> 8)}, nil)
}

// Close turns every output off and releases the bus.
func (d *PCA9685Driver) Close() error {
	var firstErr error
	for _, out := range d.outputs {
		reg := byte(regLED0OnL + 4*out.Address)
		// Full-off bit (bit 4 of LEDn_OFF_H).
		if err := d.conn.Tx([]byte{reg, 0, 0, 0, 0x10}, nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.closer != nil {
		if err := d.closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
