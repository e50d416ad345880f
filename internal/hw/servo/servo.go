package servo

import "fmt"

// Channel identifies one actuator of the arm.
type Channel int

const (
	Wrist Channel = iota
	Elbow
	Biceps
	Shoulder
	Claw
)

// ChannelCount is the number of actuators (four joints plus the claw).
const ChannelCount = 5

// Joints lists the joint channels in frame order.
var Joints = [4]Channel{Wrist, Elbow, Biceps, Shoulder}

func (c Channel) String() string {
	switch c {
	case Wrist:
		return "wrist"
	case Elbow:
		return "elbow"
	case Biceps:
		return "biceps"
	case Shoulder:
		return "shoulder"
	case Claw:
		return "claw"
	}
	return fmt.Sprintf("channel(%d)", int(c))
}

// Driver commands positional servos by angle in degrees (0-180).
type Driver interface {
	SetAngle(ch Channel, deg int) error
	Close() error
}

// Output describes how one channel is wired: the hardware address
// (BCM pin, PCA9685 output or bus servo ID) and its pulse range.
type Output struct {
	Address    int
	MinPulseUs int
	MaxPulseUs int
}

// PulseWidthUs maps an angle to a pulse width, linear between minUs at 0
// degrees and maxUs at 180 degrees. Angles outside 0-180 are clamped.
func PulseWidthUs(deg, minUs, maxUs int) int {
	if deg < 0 {
		deg = 0
	}
	if deg > 180 {
		deg = 180
	}
	return minUs + deg*(maxUs-minUs)/180
}

func lookup(outputs map[Channel]Output, ch Channel) (Output, error) {
	out, ok := outputs[ch]
	if !ok {
		return Output{}, fmt.Errorf("no output configured for %s", ch)
	}
	return out, nil
}
