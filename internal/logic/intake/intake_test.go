package intake

import (
	"testing"

	"github.com/cjeanneret/ArmGo/internal/config"
	"github.com/cjeanneret/ArmGo/internal/frame"
)

func firmwareLimits() [frame.Joints]Limit {
	return [frame.Joints]Limit{
		{Min: 3, Max: 120},
		{Min: 3, Max: 120},
		{Min: 3, Max: 160},
		{Min: 3, Max: 120, Invert: true},
	}
}

func TestNormalize_Clamps(t *testing.T) {
	in := NewWithLimits([frame.Joints]Limit{
		{Min: 3, Max: 120},
		{Min: 3, Max: 120},
		{Min: 3, Max: 160},
		{Min: 3, Max: 120},
	})

	cases := []struct {
		name string
		raw  [frame.Joints]uint16
		want [frame.Joints]int
	}{
		{"in_range", [frame.Joints]uint16{10, 60, 100, 120}, [frame.Joints]int{10, 60, 100, 120}},
		{"below_min", [frame.Joints]uint16{0, 1, 2, 3}, [frame.Joints]int{3, 3, 3, 3}},
		{"above_max", [frame.Joints]uint16{121, 500, 170, 65535}, [frame.Joints]int{120, 120, 160, 120}},
		{"biceps_wider", [frame.Joints]uint16{150, 150, 150, 150}, [frame.Joints]int{120, 120, 150, 120}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := in.Normalize(frame.Raw{Joints: tc.raw})
			if got.Joints != tc.want {
				t.Errorf("Normalize(%v) = %v, want %v", tc.raw, got.Joints, tc.want)
			}
		})
	}
}

func TestNormalize_Invert(t *testing.T) {
	in := NewWithLimits(firmwareLimits())

	cases := []struct {
		raw  uint16
		want int
	}{
		{20, 100}, // 120 - 20
		{117, 3},  // 120 - 117
		{120, 3},  // 0 clamps to min
		{0, 120},  // 120 - 0
		{500, 3},  // negative clamps to min
		{60, 60},  // midpoint unchanged
		{2, 118},  // inverted before clamping: 120 - 2
		{119, 3},  // 120 - 119 = 1 clamps to min
	}
	for _, tc := range cases {
		got := in.Normalize(frame.Raw{Joints: [frame.Joints]uint16{50, 50, 50, tc.raw}})
		if got.Joints[3] != tc.want {
			t.Errorf("inverted shoulder(%d) = %d, want %d", tc.raw, got.Joints[3], tc.want)
		}
		if got.Joints[0] != 50 {
			t.Errorf("non-inverted wrist changed: %d", got.Joints[0])
		}
	}
}

func TestNormalize_AlwaysInRange(t *testing.T) {
	in := NewWithLimits(firmwareLimits())
	limits := in.Limits()

	for v := 0; v <= 65535; v += 97 {
		raw := frame.Raw{Joints: [frame.Joints]uint16{uint16(v), uint16(v), uint16(v), uint16(v)}}
		cmd := in.Normalize(raw)
		for i, l := range limits {
			if cmd.Joints[i] < l.Min || cmd.Joints[i] > l.Max {
				t.Fatalf("joint %d: %d outside [%d, %d] for input %d", i, cmd.Joints[i], l.Min, l.Max, v)
			}
		}
	}
}

func TestNormalize_PassesButtonsAndID(t *testing.T) {
	in := NewWithLimits(firmwareLimits())
	cmd := in.Normalize(frame.Raw{ID: 42, Claw: 1, Record: 1, Enable: 1})
	if cmd.ID != 42 || !cmd.Claw || !cmd.Record || cmd.Play || !cmd.Enable {
		t.Errorf("unexpected command: %+v", cmd)
	}
}

func TestNew_FromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Joints[1].Invert = true
	in := New(cfg)

	l := in.Limits()
	if l[2].Max != 160 {
		t.Errorf("biceps max = %d, want 160", l[2].Max)
	}
	if !l[1].Invert || l[0].Invert {
		t.Errorf("invert flags = %v/%v, want false/true", l[0].Invert, l[1].Invert)
	}
}

func TestClamp(t *testing.T) {
	if Clamp(-1, 0, 10) != 0 || Clamp(11, 0, 10) != 10 || Clamp(5, 0, 10) != 5 {
		t.Error("Clamp returned unexpected value")
	}
}
