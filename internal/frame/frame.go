// Package frame defines the command frame exchanged with the remote controller
// and its fixed-size wire encoding.
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Joints is the number of angle targets carried by a frame.
const Joints = 4

// Size is the encoded size of a Raw frame: nine little-endian uint16 fields.
const Size = 18

// ErrShortFrame is returned when a payload is smaller than Size.
var ErrShortFrame = errors.New("frame: short payload")

// Raw mirrors the record sent by the remote over the radio link.
// Field order is the wire order.
type Raw struct {
	ID     uint16
	Joints [Joints]uint16 // wrist, elbow, biceps, shoulder
	Claw   uint16
	Record uint16
	Play   uint16
	Enable uint16
}

// Command is a normalized frame: joint targets in degrees and decoded buttons.
// It is the unit of both live input and recorded history.
type Command struct {
	ID     uint16
	Joints [Joints]int
	Claw   bool
	Record bool
	Play   bool
	Enable bool
}

// Decode parses the first Size bytes of p.
func Decode(p []byte) (Raw, error) {
	var r Raw
	if len(p) < Size {
		return r, fmt.Errorf("%w: got %d bytes, want %d", ErrShortFrame, len(p), Size)
	}
	if err := binary.Read(bytes.NewReader(p[:Size]), binary.LittleEndian, &r); err != nil {
		return r, fmt.Errorf("decode frame: %w", err)
	}
	return r, nil
}

// MarshalBinary encodes the frame in wire order.
func (r Raw) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(Size)
	if err := binary.Write(&buf, binary.LittleEndian, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Buttons converts the raw button words into a Command with joint targets
// copied unchanged. A button is asserted when its word is non-zero.
func (r Raw) Buttons() Command {
	c := Command{
		ID:     r.ID,
		Claw:   r.Claw != 0,
		Record: r.Record != 0,
		Play:   r.Play != 0,
		Enable: r.Enable != 0,
	}
	for i, v := range r.Joints {
		c.Joints[i] = int(v)
	}
	return c
}

// Raw converts a Command back into its wire form. Targets saturate to the
// uint16 range: negative encodes as 0, too large as 65535.
func (c Command) Raw() Raw {
	r := Raw{
		ID:     c.ID,
		Claw:   boolWord(c.Claw),
		Record: boolWord(c.Record),
		Play:   boolWord(c.Play),
		Enable: boolWord(c.Enable),
	}
	for i, v := range c.Joints {
		if v < 0 {
			v = 0
		}
		if v > math.MaxUint16 {
			v = math.MaxUint16
		}
		r.Joints[i] = uint16(v)
	}
	return r
}

func boolWord(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}
