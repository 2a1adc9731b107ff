package avr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quiethouse/avrbridge/internal/device"
	"github.com/quiethouse/avrbridge/internal/protocol"
)

func newTestClient(t *testing.T, f *fakeReceiver) *Client {
	t.Helper()

	c, err := New(Config{
		Host:              "127.0.0.1",
		Port:              f.port(),
		CommandTimeout:    500 * time.Millisecond,
		ReconnectInterval: 20 * time.Millisecond,
		WriteDelay:        time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// shortPowerOnRefresh shrinks the power-on refresh delay for the test.
func shortPowerOnRefresh(t *testing.T) {
	t.Helper()
	saved := powerOnRefreshDelay
	powerOnRefreshDelay = 10 * time.Millisecond
	t.Cleanup(func() { powerOnRefreshDelay = saved })
}

func TestClientConnectLearnsFullState(t *testing.T) {
	shortPowerOnRefresh(t)

	f := newFakeReceiver(t)
	f.respond("P1P?", "P1P1")
	f.respond("P1V?", "P1VM-35")
	f.respond("P1S?", "P1S5")
	f.respond("P1M?", "P1M0")

	c := newTestClient(t, f)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Connect queries power; the on reply triggers the secondary refresh.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := c.Muted(); err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if on, err := c.Power(); err != nil || !on {
		t.Errorf("Power() = %v, %v, want true", on, err)
	}
	if att, err := c.Attenuation(); err != nil || att != -35 {
		t.Errorf("Attenuation() = %d, %v, want -35", att, err)
	}
	if vol, err := c.Volume(); err != nil || vol != 61 {
		t.Errorf("Volume() = %d, %v, want 61", vol, err)
	}
	if pct, err := c.VolumeAsPercentage(); err != nil || pct != 0.61 {
		t.Errorf("VolumeAsPercentage() = %v, %v, want 0.61", pct, err)
	}
	if name, err := c.InputName(); err != nil || name != "GAME" {
		t.Errorf("InputName() = %q, %v, want GAME", name, err)
	}
	if muted, err := c.Muted(); err != nil || muted {
		t.Errorf("Muted() = %v, %v, want false", muted, err)
	}
}

func TestClientSettersEncodeWireValues(t *testing.T) {
	f := newFakeReceiver(t)
	f.respond("P1P?", "P1P0") // answer the post-connect refresh promptly
	c := newTestClient(t, f)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ctx := context.Background()

	if err := c.SetPower(ctx, true); err != nil {
		t.Fatalf("SetPower: %v", err)
	}
	f.waitReceived(t, "P1P1")

	// Volume 50 maps to -45 dB attenuation on the wire.
	if err := c.SetVolume(ctx, 50); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	f.waitReceived(t, "P1V-45")

	if err := c.SetMute(ctx, true); err != nil {
		t.Fatalf("SetMute: %v", err)
	}
	f.waitReceived(t, "P1M1")

	if err := c.SetInput(ctx, "5"); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	f.waitReceived(t, "P1S5")

	if err := c.SetInputByName(ctx, "usb"); err != nil {
		t.Fatalf("SetInputByName: %v", err)
	}
	f.waitReceived(t, "P1Sd")
}

func TestClientQueryRoundTrip(t *testing.T) {
	f := newFakeReceiver(t)
	f.respond("P1P?", "P1P0")
	f.respond("P1M?", "P1M1")
	c := newTestClient(t, f)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	v, err := c.Query(context.Background(), protocol.PropMute)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !v.Known || v.Raw != "1" {
		t.Errorf("Query(mute) = %+v, want known 1", v)
	}
}

func TestClientSetterValidation(t *testing.T) {
	f := newFakeReceiver(t)
	c := newTestClient(t, f)
	ctx := context.Background()

	// Validation happens before any network traffic.
	cases := []struct {
		name string
		err  error
	}{
		{"volume above range", c.SetVolume(ctx, 150)},
		{"volume below range", c.SetVolume(ctx, -1)},
		{"attenuation above range", c.SetAttenuation(ctx, 5)},
		{"attenuation below range", c.SetAttenuation(ctx, -95)},
		{"percentage above range", c.SetVolumeAsPercentage(ctx, 1.5)},
		{"unknown input", c.SetInput(ctx, "z")},
		{"unknown input name", c.SetInputByName(ctx, "laserdisc")},
	}
	for _, tc := range cases {
		if !errors.Is(tc.err, ErrInvalidValue) {
			t.Errorf("%s: err = %v, want ErrInvalidValue", tc.name, tc.err)
		}
	}
}

func TestClientGettersBeforeConnect(t *testing.T) {
	f := newFakeReceiver(t)
	c := newTestClient(t, f)

	if _, err := c.Power(); !errors.Is(err, device.ErrUnknownValue) {
		t.Errorf("Power() = %v, want ErrUnknownValue", err)
	}
	if _, err := c.Volume(); !errors.Is(err, device.ErrUnknownValue) {
		t.Errorf("Volume() = %v, want ErrUnknownValue", err)
	}
	if _, err := c.InputName(); !errors.Is(err, device.ErrUnknownValue) {
		t.Errorf("InputName() = %v, want ErrUnknownValue", err)
	}
}

func TestClientStateSubscription(t *testing.T) {
	f := newFakeReceiver(t)
	c := newTestClient(t, f)

	states := make(chan ConnState, 8)
	unsubscribe := c.OnStateChange(func(s ConnState) { states <- s })
	defer unsubscribe()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-states:
			if s == StateConnected {
				return
			}
		case <-deadline:
			t.Fatal("never observed connected state")
		}
	}
}
