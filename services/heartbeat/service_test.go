// services/heartbeat/service_test.go
package heartbeat

import (
	"context"
	"testing"
	"time"

	"panelcode-go/bus"
	"panelcode-go/types"
)

func TestHeartbeat_BeatsAtConfiguredInterval(t *testing.T) {
	b := bus.NewBus(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	Start(ctx, b.NewConnection("heartbeat"))

	drv := b.NewConnection("hb_test")
	beatSub := drv.Subscribe(bus.Topic{"heartbeat"})
	defer drv.Unsubscribe(beatSub)

	// Seed a retained panel snapshot, then speed the beat up.
	drv.Publish(drv.NewMessage(bus.Topic{"panel", "outputs"}, types.PanelOutputs{
		PowerStatus: true,
		MotorSpeed:  112,
		Temperature: 25,
	}, true))
	drv.Publish(drv.NewMessage(bus.Topic{"config", "heartbeat"}, map[string]any{
		"interval": float64(0.05),
	}, true))

	var prev uint32
	for i := 0; i < 2; i++ {
		select {
		case m := <-beatSub.Channel():
			p, ok := m.Payload.(map[string]any)
			if !ok {
				t.Fatalf("beat payload type = %T", m.Payload)
			}
			seq, ok := p["seq"].(uint32)
			if !ok || seq <= prev {
				t.Fatalf("seq not increasing: %v after %d", p["seq"], prev)
			}
			prev = seq
			if power, ok := p["power"].(bool); !ok || !power {
				t.Fatalf("beat missing panel summary: %v", p)
			}
			if speed, ok := p["motor_speed"].(uint8); !ok || speed != 112 {
				t.Fatalf("motor_speed = %v, want 112", p["motor_speed"])
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no heartbeat received")
		}
	}
}
