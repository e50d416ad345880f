package frame

import (
	"errors"
	"testing"
)

func TestDecode_WireLayout(t *testing.T) {
	p := []byte{
		0x07, 0x00, // id
		0x0a, 0x00, // wrist 10
		0x14, 0x00, // elbow 20
		0x1e, 0x00, // biceps 30
		0x2c, 0x01, // shoulder 300
		0x01, 0x00, // claw
		0x00, 0x00, // record
		0x01, 0x00, // play
		0x02, 0x00, // enable (any non-zero)
	}
	r, err := Decode(p)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := Raw{ID: 7, Joints: [Joints]uint16{10, 20, 30, 300}, Claw: 1, Play: 1, Enable: 2}
	if r != want {
		t.Fatalf("Decode = %+v, want %+v", r, want)
	}

	c := r.Buttons()
	if !c.Claw || c.Record || !c.Play || !c.Enable {
		t.Errorf("buttons = claw:%v record:%v play:%v enable:%v", c.Claw, c.Record, c.Play, c.Enable)
	}
	if c.Joints != [Joints]int{10, 20, 30, 300} {
		t.Errorf("joints = %v", c.Joints)
	}
}

func TestDecode_ShortPayload(t *testing.T) {
	_, err := Decode(make([]byte, Size-1))
	if !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame, got %v", err)
	}
}

func TestDecode_IgnoresTrailingBytes(t *testing.T) {
	raw := Raw{ID: 1, Joints: [Joints]uint16{1, 2, 3, 4}}
	p, err := raw.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(append(p, 0xff, 0xff))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != raw {
		t.Errorf("Decode = %+v, want %+v", got, raw)
	}
}

func TestMarshalBinary_Size(t *testing.T) {
	p, err := Raw{}.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != Size {
		t.Errorf("len = %d, want %d", len(p), Size)
	}
}

func TestCommandRaw_JointsSaturate(t *testing.T) {
	c := Command{Joints: [Joints]int{-5, 0, 200, 70000}, Record: true}
	r := c.Raw()
	if r.Joints != [Joints]uint16{0, 0, 200, 65535} {
		t.Errorf("joints = %v", r.Joints)
	}
	if r.Record != 1 || r.Play != 0 {
		t.Errorf("record=%d play=%d", r.Record, r.Play)
	}
}
