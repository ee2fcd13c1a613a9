// services/heartbeat/service.go
package heartbeat

import (
	"context"
	"time"

	"panelcode-go/bus"
	"panelcode-go/types"
	"panelcode-go/x/timex"
)

const defaultIntervalS = 5

var (
	topicHeartbeat = bus.Topic{"heartbeat"}
	topicConfig    = bus.Topic{"config", "heartbeat"}
	topicOutputs   = bus.Topic{"panel", "outputs"}
)

// Service periodically publishes a liveness beat carrying the uptime and a
// one-line summary of the panel state (power, fault, speed).
type Service struct {
	conn    *bus.Connection
	started int64
	seq     uint32
	lastOut types.PanelOutputs
	haveOut bool
}

func Start(ctx context.Context, conn *bus.Connection) {
	s := &Service{conn: conn, started: timex.NowMs()}
	go s.run(ctx)
}

func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	outSub := s.conn.Subscribe(topicOutputs)
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(outSub)

	interval := time.Duration(defaultIntervalS) * time.Second
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-cfgSub.Channel():
			if m, ok := msg.Payload.(map[string]any); ok {
				if v, ok := m["interval"].(float64); ok && v > 0 {
					interval = time.Duration(v * float64(time.Second))
					tick.Reset(interval)
				}
			}

		case msg := <-outSub.Channel():
			if out, ok := msg.Payload.(types.PanelOutputs); ok {
				s.lastOut = out
				s.haveOut = true
			}

		case <-tick.C:
			s.beat()
		}
	}
}

func (s *Service) beat() {
	s.seq++
	payload := map[string]any{
		"seq":       s.seq,
		"ts_ms":     timex.NowMs(),
		"uptime_ms": timex.NowMs() - s.started,
	}
	if s.haveOut {
		payload["power"] = s.lastOut.PowerStatus
		payload["fault"] = s.lastOut.Fault
		payload["motor_speed"] = s.lastOut.MotorSpeed
		payload["temp_c"] = s.lastOut.Temperature
	}
	s.conn.Publish(s.conn.NewMessage(topicHeartbeat, payload, true))
}
