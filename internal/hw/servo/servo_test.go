package servo

import (
	"errors"
	"testing"

	"github.com/cjeanneret/ArmGo/internal/hw/gpio"
)

// recordingGPIO records PWM calls for verification.
type recordingGPIO struct {
	setups []pwmSetup
	writes []pwmWrite
	closed bool
}

type pwmSetup struct {
	pin     int
	clockHz int
}

type pwmWrite struct {
	pin          int
	duty, period uint32
}

func (d *recordingGPIO) SetupPin(pin int, mode gpio.PinMode) error { return nil }
func (d *recordingGPIO) WritePin(pin int, level gpio.Level) error  { return nil }
func (d *recordingGPIO) ReadPin(pin int) (gpio.Level, error)       { return gpio.Low, nil }

func (d *recordingGPIO) SetupPWM(pin int, clockHz int) error {
	d.setups = append(d.setups, pwmSetup{pin, clockHz})
	return nil
}

func (d *recordingGPIO) WritePWM(pin int, duty, cycle uint32) error {
	d.writes = append(d.writes, pwmWrite{pin, duty, cycle})
	return nil
}

func (d *recordingGPIO) Close() error {
	d.closed = true
	return nil
}

func TestPulseWidthUs(t *testing.T) {
	cases := []struct {
		deg, want int
	}{
		{0, 500},
		{90, 1450},
		{180, 2400},
		{-10, 500},
		{200, 2400},
	}
	for _, tc := range cases {
		if got := PulseWidthUs(tc.deg, 500, 2400); got != tc.want {
			t.Errorf("PulseWidthUs(%d) = %d, want %d", tc.deg, got, tc.want)
		}
	}
}

func TestChannelString(t *testing.T) {
	if Biceps.String() != "biceps" {
		t.Errorf("Biceps.String() = %q", Biceps.String())
	}
	if Channel(9).String() != "channel(9)" {
		t.Errorf("unknown channel = %q", Channel(9).String())
	}
}

func TestPWMDriver_SetAngle(t *testing.T) {
	drv := &recordingGPIO{}
	outputs := map[Channel]Output{
		Wrist: {Address: 18, MinPulseUs: 500, MaxPulseUs: 2400},
		Claw:  {Address: 19, MinPulseUs: 1000, MaxPulseUs: 2000},
	}
	d, err := NewPWMDriver(drv, 50, outputs)
	if err != nil {
		t.Fatalf("NewPWMDriver: %v", err)
	}
	if len(drv.setups) != 2 {
		t.Fatalf("expected 2 PWM setups, got %d", len(drv.setups))
	}
	for _, s := range drv.setups {
		if s.clockHz != 1_000_000 {
			t.Errorf("pin %d clock = %d, want 1MHz", s.pin, s.clockHz)
		}
	}

	if err := d.SetAngle(Wrist, 180); err != nil {
		t.Fatalf("SetAngle: %v", err)
	}
	if err := d.SetAngle(Claw, 90); err != nil {
		t.Fatalf("SetAngle: %v", err)
	}
	want := []pwmWrite{
		{pin: 18, duty: 2400, period: 20000},
		{pin: 19, duty: 1500, period: 20000},
	}
	if len(drv.writes) != len(want) {
		t.Fatalf("writes = %v, want %v", drv.writes, want)
	}
	for i := range want {
		if drv.writes[i] != want[i] {
			t.Errorf("write %d = %+v, want %+v", i, drv.writes[i], want[i])
		}
	}
}

func TestPWMDriver_UnknownChannel(t *testing.T) {
	d, err := NewPWMDriver(&recordingGPIO{}, 50, map[Channel]Output{})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SetAngle(Elbow, 10); err == nil {
		t.Error("expected error for unconfigured channel")
	}
}

func TestPWMDriver_InvalidPeriod(t *testing.T) {
	if _, err := NewPWMDriver(&recordingGPIO{}, 0, nil); err == nil {
		t.Error("expected error for 0 Hz")
	}
}

func TestPWMDriver_CloseReleasesGPIO(t *testing.T) {
	drv := &recordingGPIO{}
	d, _ := NewPWMDriver(drv, 50, nil)
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if !drv.closed {
		t.Error("GPIO driver should be closed")
	}
}

// recordingConn records I2C writes.
type recordingConn struct {
	writes [][]byte
	err    error
}

func (c *recordingConn) Tx(w, r []byte) error {
	c.writes = append(c.writes, append([]byte(nil), w...))
	return c.err
}

func TestPrescale(t *testing.T) {
	// Datasheet: 50 Hz -> 121 (0x79), 1526 Hz -> 3.
	if got := Prescale(50); got != 121 {
		t.Errorf("Prescale(50) = %d, want 121", got)
	}
	if got := Prescale(1526); got != 3 {
		t.Errorf("Prescale(1526) = %d, want 3", got)
	}
	if got := Prescale(1); got != 255 {
		t.Errorf("Prescale(1) = %d, want 255", got)
	}
}

func TestPCA9685_InitSequence(t *testing.T) {
	conn := &recordingConn{}
	if _, err := NewPCA9685(conn, 50, nil); err != nil {
		t.Fatalf("NewPCA9685: %v", err)
	}
	want := [][]byte{
		{regMode1, mode1Sleep},
		{regPrescale, 121},
		{regMode1, mode1AutoInc},
		{regMode1, mode1AutoInc | mode1Restart},
	}
	if len(conn.writes) != len(want) {
		t.Fatalf("writes = %v, want %v", conn.writes, want)
	}
	for i := range want {
		if string(conn.writes[i]) != string(want[i]) {
			t.Errorf("write %d = %v, want %v", i, conn.writes[i], want[i])
		}
	}
}

func TestPCA9685_SetAngle(t *testing.T) {
	conn := &recordingConn{}
	d, err := NewPCA9685(conn, 50, map[Channel]Output{
		Biceps: {Address: 2, MinPulseUs: 500, MaxPulseUs: 2500},
	})
	if err != nil {
		t.Fatal(err)
	}
	conn.writes = nil

	if err := d.SetAngle(Biceps, 90); err != nil {
		t.Fatalf("SetAngle: %v", err)
	}
	// 1500us of 20000us -> 307 ticks of 4096.
	want := []byte{regLED0OnL + 8, 0, 0, 307 & 0xFF, 307 >> 8}
	if len(conn.writes) != 1 || string(conn.writes[0]) != string(want) {
		t.Errorf("writes = %v, want [%v]", conn.writes, want)
	}
}

func TestPCA9685_RejectsOutOfRangeOutput(t *testing.T) {
	_, err := NewPCA9685(&recordingConn{}, 50, map[Channel]Output{Claw: {Address: 16}})
	if err == nil {
		t.Error("expected error for output 16")
	}
}

func TestPCA9685_InitErrorPropagates(t *testing.T) {
	boom := errors.New("nack")
	_, err := NewPCA9685(&recordingConn{err: boom}, 50, nil)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

func TestPCA9685_CloseTurnsOutputsOff(t *testing.T) {
	conn := &recordingConn{}
	d, _ := NewPCA9685(conn, 50, map[Channel]Output{Wrist: {Address: 0, MinPulseUs: 500, MaxPulseUs: 2400}})
	conn.writes = nil
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	want := []byte{regLED0OnL, 0, 0, 0, 0x10}
	if len(conn.writes) != 1 || string(conn.writes[0]) != string(want) {
		t.Errorf("writes = %v, want [%v]", conn.writes, want)
	}
}

func TestFeetechPosition(t *testing.T) {
	cases := []struct{ deg, want int }{
		{0, 1024},
		{90, 2048},
		{180, 3072},
		{-5, 1024},
		{270, 3072},
	}
	for _, tc := range cases {
		if got := FeetechPosition(tc.deg); got != tc.want {
			t.Errorf("FeetechPosition(%d) = %d, want %d", tc.deg, got, tc.want)
		}
	}
}
