// services/probe/probe.go
//
// Diagnostics-only SHTC3 probe. Publishes ambient temperature readings next
// to the panel's modelled temperature so the two can be compared; it never
// feeds the control core.
package probe

import (
	"context"
	"time"

	"panelcode-go/bus"
	"panelcode-go/errcode"
	"panelcode-go/types"
	"panelcode-go/x/mathx"
	"panelcode-go/x/timex"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/shtc3"
)

const (
	defaultIntervalMS = 1000
	shtc3Addr         = 0x70
)

var (
	topicConfig = bus.Topic{"config", "probe"}
	topicTemp   = bus.Topic{"panel", "probe", "temperature"}
	topicHum    = bus.Topic{"panel", "probe", "humidity"}
	topicInfo   = bus.Topic{"panel", "probe", "info"}
	topicErr    = bus.Topic{"panel", "probe", "error"}
)

// I2CFactory resolves a configured bus name ("i2c0") to a live bus. Platform
// code injects the real machine buses; tests inject fakes.
type I2CFactory interface {
	ByID(id string) (drivers.I2C, bool)
}

// Service polls the sensor at the configured interval and publishes retained
// readings.
type Service struct {
	conn    *bus.Connection
	factory I2CFactory

	busID    string
	interval time.Duration

	drv   shtc3.Device
	ready bool
}

// Start launches the probe in a goroutine. The factory must outlive ctx.
func Start(ctx context.Context, conn *bus.Connection, factory I2CFactory) {
	s := &Service{
		conn:     conn,
		factory:  factory,
		interval: defaultIntervalMS * time.Millisecond,
	}
	go s.run(ctx)
}

func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	defer s.conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(s.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-cfgSub.Channel():
			if m, ok := msg.Payload.(map[string]any); ok {
				s.applyConfig(m)
				tick.Reset(s.interval)
			}

		case <-tick.C:
			s.poll()
		}
	}
}

func (s *Service) applyConfig(m map[string]any) {
	if id, ok := m["bus"].(string); ok && id != s.busID {
		s.busID = id
		s.ready = false
	}
	if v, ok := m["interval_ms"].(float64); ok && v > 0 {
		s.interval = time.Duration(mathx.Clamp(v, 10, 3_600_000)) * time.Millisecond
	}
}

// attach binds the driver to the configured bus and announces the sensor.
func (s *Service) attach() bool {
	if s.busID == "" {
		return false
	}
	i2c, ok := s.factory.ByID(s.busID)
	if !ok {
		s.publishErr(errcode.ProbeNotReady)
		return false
	}
	s.drv = shtc3.New(i2c)
	s.ready = true
	s.conn.Publish(s.conn.NewMessage(topicInfo, types.ProbeInfo{
		Sensor: "shtc3",
		Bus:    s.busID,
		Addr:   shtc3Addr,
	}, true))
	return true
}

func (s *Service) poll() {
	if !s.ready && !s.attach() {
		return
	}

	// Wake, read, sleep around each measurement.
	_ = s.drv.WakeUp()
	defer func() { _ = s.drv.Sleep() }()

	tmc, rhx100, err := s.drv.ReadTemperatureHumidity()
	if err != nil {
		s.publishErr(errcode.MapDriverErr(err))
		return
	}

	// tmc is milli-degrees C; publish deci-degrees. Clamp ranges.
	decic := mathx.Clamp(tmc/100, -32768, 32767)
	rhx100 = mathx.Clamp(rhx100, 0, 10000)

	ts := timex.NowMs()
	s.conn.Publish(s.conn.NewMessage(topicTemp, types.ProbeValue{
		DeciC: int16(decic),
		TsMs:  ts,
	}, true))
	s.conn.Publish(s.conn.NewMessage(topicHum, map[string]any{
		"rh_x100": uint16(rhx100),
		"ts_ms":   ts,
	}, true))
}

func (s *Service) publishErr(code errcode.Code) {
	s.conn.Publish(s.conn.NewMessage(topicErr, map[string]any{
		"code":  string(code),
		"ts_ms": timex.NowMs(),
	}, true))
}
