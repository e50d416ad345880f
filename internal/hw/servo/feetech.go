package servo

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/hipsterbrown/feetech-servo/feetech"
)

// 0-180 degrees covers the half-turn around the mechanical mid-point (2048):
// feetechZero is the raw position of 0 degrees on the 4096-step scale.
const (
	feetechZero  = 1024
	feetechSteps = 4096
)

// FeetechDriver drives STS bus servos over a serial line.
type FeetechDriver struct {
	bus     *feetech.Bus
	group   *feetech.ServoGroup
	ids     map[Channel]int
	timeout time.Duration
}

// NewFeetechDriver opens the bus and enables torque on the configured servos.
func NewFeetechDriver(port string, baud int, ids map[Channel]int) (*FeetechDriver, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baud,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	list := make([]int, 0, len(ids))
	for _, id := range ids {
		list = append(list, id)
	}
	group := feetech.NewServoGroupByIDs(bus, list...)

	d := &FeetechDriver{bus: bus, group: group, ids: ids, timeout: 100 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := group.EnableAll(ctx); err != nil {
		bus.Close()
		return nil, fmt.Errorf("enable torque: %w", err)
	}
	debug.Info("Feetech bus %s: %d servos enabled", port, len(list))
	return d, nil
}

// FeetechPosition converts degrees (clamped to 0-180) to a raw servo position.
func FeetechPosition(deg int) int {
	if deg < 0 {
		deg = 0
	}
	if deg > 180 {
		deg = 180
	}
	return feetechZero + deg*feetechSteps/360
}

func (d *FeetechDriver) SetAngle(ch Channel, deg int) error {
	id, ok := d.ids[ch]
	if !ok {
		return fmt.Errorf("no servo ID configured for %s", ch)
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.group.SetPositions(ctx, feetech.PositionMap{id: FeetechPosition(deg)}); err != nil {
		return fmt.Errorf("write %s: %w", ch, err)
	}
	return nil
}

// Close disables torque and closes the bus.
func (d *FeetechDriver) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.group.DisableAll(ctx); err != nil {
		debug.Error(fmt.Errorf("disable torque: %w", err))
	}
	return d.bus.Close()
}
