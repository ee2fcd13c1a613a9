// bridge/bridge_test.go
package bridge

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"panelcode-go/bus"
	"panelcode-go/types"
)

func TestBridge_EstablishesUARTLinkAndReportsState(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("bridge_test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn)

	// Subscribe to bridge/state (retained) and verify initial status.
	stateSub := conn.Subscribe(bus.Topic{"bridge", "state"})
	defer conn.Unsubscribe(stateSub)

	first := nextStatePayload(t, stateSub, 500*time.Millisecond)
	assertLevelStatus(t, first, "idle", "awaiting_config")

	// Inject a UART dialler that returns a net.Pipe; keep the remote end to
	// simulate link loss.
	prevDial := UARTDial
	defer func() { UARTDial = prevDial }()
	var remote io.ReadWriteCloser
	UARTDial = func(ctx context.Context, _ UARTConfig) (io.ReadWriteCloser, error) {
		lc, rc := net.Pipe()
		remote = rc
		go remotePeer(rc, nil)
		return lc, nil
	}

	// Publish a valid UART config.
	cfg := `{"transport":{"type":"uart","uart":{"baud":115200,"rx_pin":1,"tx_pin":0}}}`
	conn.Publish(conn.NewMessage(bus.Topic{"config", "bridge"}, cfg, false))

	up := nextStatePayload(t, stateSub, time.Second)
	assertLevelStatus(t, up, "up", "link_established")

	// Close the remote to force link loss; expect degraded state.
	if remote != nil {
		_ = remote.Close()
	}

	degraded := nextStatePayload(t, stateSub, time.Second)
	assertLevelStatus(t, degraded, "degraded", "link_lost_retrying")
}

func TestBridge_UnknownTransportYieldsErrorState(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("bridge_test_bad")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn)

	stateSub := conn.Subscribe(bus.Topic{"bridge", "state"})
	defer conn.Unsubscribe(stateSub)

	_ = nextStatePayload(t, stateSub, 500*time.Millisecond) // initial awaiting_config

	// Publish a config with an unknown transport type.
	cfg := `{"transport":{"type":"bogus"}}`
	conn.Publish(conn.NewMessage(bus.Topic{"config", "bridge"}, cfg, false))

	errState := nextStatePayload(t, stateSub, time.Second)
	assertLevelStatus(t, errState, "error", "transport_init_failed")
}

func TestBridge_ForwardsOutputsToPeer(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("bridge_fwd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn)

	stateSub := conn.Subscribe(bus.Topic{"bridge", "state"})
	defer conn.Unsubscribe(stateSub)
	_ = nextStatePayload(t, stateSub, 500*time.Millisecond)

	prevDial := UARTDial
	defer func() { UARTDial = prevDial }()
	frames := make(chan Frame, 8)
	UARTDial = func(ctx context.Context, _ UARTConfig) (io.ReadWriteCloser, error) {
		lc, rc := net.Pipe()
		go remotePeer(rc, frames)
		return lc, nil
	}

	cfg := `{"transport":{"type":"uart","uart":{"baud":115200,"rx_pin":1,"tx_pin":0}}}`
	conn.Publish(conn.NewMessage(bus.Topic{"config", "bridge"}, cfg, false))
	assertLevelStatus(t, nextStatePayload(t, stateSub, time.Second), "up", "link_established")

	// Retained panel outputs must reach the peer as a pub frame of
	// [status, speed] with the speed low nibble masked off.
	conn.Publish(conn.NewMessage(bus.Topic{"panel", "outputs"}, types.PanelOutputs{
		PowerStatus: true,
		Enabled:     true,
		Status:      0b10000001,
		MotorSpeed:  0x7C,
	}, true))

	select {
	case f := <-frames:
		if f.Type != framePub {
			t.Fatalf("frame type = %#02x, want framePub", f.Type)
		}
		if len(f.Payload) != 2 || f.Payload[0] != 0b10000001 || f.Payload[1] != 0x70 {
			t.Fatalf("frame payload = %v, want [129 112]", f.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no pub frame reached the peer")
	}
}

func TestBridge_PublishesInboundVectors(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("bridge_in")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn)

	inSub := conn.Subscribe(bus.Topic{"panel", "inputs"})
	defer conn.Unsubscribe(inSub)
	stateSub := conn.Subscribe(bus.Topic{"bridge", "state"})
	defer conn.Unsubscribe(stateSub)
	_ = nextStatePayload(t, stateSub, 500*time.Millisecond)

	prevDial := UARTDial
	defer func() { UARTDial = prevDial }()
	remoteCh := make(chan io.ReadWriteCloser, 1)
	UARTDial = func(ctx context.Context, _ UARTConfig) (io.ReadWriteCloser, error) {
		lc, rc := net.Pipe()
		remoteCh <- rc
		return lc, nil
	}

	cfg := `{"transport":{"type":"uart","uart":{"baud":115200,"rx_pin":1,"tx_pin":0}}}`
	conn.Publish(conn.NewMessage(bus.Topic{"config", "bridge"}, cfg, false))
	assertLevelStatus(t, nextStatePayload(t, stateSub, time.Second), "up", "link_established")

	remote := <-remoteCh
	defer remote.Close()
	go remotePeer(remote, nil) // drain pings after the write below

	// Peer sends a raw input vector: power_plc + motor mode, accel=4 brake=1.
	if _, err := remote.Write([]byte{framePub, 0x00, 0x02, 0b00001100, 0b01000001}); err != nil {
		t.Fatalf("remote write: %v", err)
	}

	select {
	case msg := <-inSub.Channel():
		vec, ok := msg.Payload.(types.PanelVector)
		if !ok {
			t.Fatalf("inbound payload type = %T, want PanelVector", msg.Payload)
		}
		if vec.Primary != 0b00001100 || vec.Bidir != 0b01000001 {
			t.Fatalf("vector = %+v, want {12 65}", vec)
		}
	case <-time.After(time.Second):
		t.Fatal("no inbound vector published")
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// remotePeer minimally services the framing used by the bridge: it replies
// PONG to PING, forwards every other frame to sink when non-nil, and exits on
// read/write error.
func remotePeer(c io.ReadWriteCloser, sink chan<- Frame) {
	defer c.Close()
	hdr := make([]byte, 3)
	for {
		if _, err := io.ReadFull(c, hdr); err != nil {
			return
		}
		typ := hdr[0]
		n := int(hdr[1])<<8 | int(hdr[2])
		var payload []byte
		if n > 0 {
			payload = make([]byte, n)
			if _, err := io.ReadFull(c, payload); err != nil {
				return
			}
		}
		switch typ {
		case framePing:
			if _, err := c.Write([]byte{framePong, 0x00, 0x00}); err != nil {
				return
			}
		default:
			if sink != nil {
				select {
				case sink <- Frame{Type: typ, Payload: payload}:
				default:
				}
			}
		}
	}
}

func nextStatePayload(t *testing.T, sub *bus.Subscription, d time.Duration) map[string]any {
	t.Helper()
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case m := <-sub.Channel():
		p, ok := m.Payload.(map[string]any)
		if !ok {
			t.Fatalf("state payload type: got %T, want map[string]any", m.Payload)
		}
		return p
	case <-timer.C:
		t.Fatalf("timeout waiting for bridge/state")
		return nil
	}
}

func assertLevelStatus(t *testing.T, payload map[string]any, wantLevel, wantStatus string) {
	t.Helper()
	gotLevel, _ := payload["level"].(string)
	gotStatus, _ := payload["status"].(string)
	if gotLevel != wantLevel || gotStatus != wantStatus {
		t.Fatalf("unexpected state: level=%q status=%q, want level=%q status=%q (payload=%v)",
			gotLevel, gotStatus, wantLevel, wantStatus, payload)
	}
}
