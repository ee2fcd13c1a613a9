// services/controller/service.go
package controller

import (
	"context"
	"time"

	"panelcode-go/bus"
	"panelcode-go/core"
	"panelcode-go/errcode"
	"panelcode-go/types"
	"panelcode-go/x/mathx"
	"panelcode-go/x/timex"
)

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

var (
	topicConfig  = bus.Topic{"config", "controller"}
	topicInputs  = bus.Topic{"panel", "inputs"}
	topicOutputs = bus.Topic{"panel", "outputs"}
	topicState   = bus.Topic{"panel", "state"}
	topicFault   = bus.Topic{"panel", "event", "fault"}
	topicControl = bus.Topic{"panel", "control", "+"}
)

// Control verbs (last token of panel/control/<verb>).
const (
	ctrlReset   = "reset"    // pulse the core reset for one tick
	ctrlEnable  = "enable"   // payload bool: external enable gate
	ctrlTickNow = "tick_now" // step once immediately; replies with outputs
)

const defaultTickHz = 1000

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

// Service owns one control core and steps it at the configured tick rate.
// All interaction goes through the bus: inputs arrive as messages, outputs
// leave as retained messages.
type Service struct {
	conn *bus.Connection

	cfg    core.Config
	st     core.State
	in     core.Inputs
	tickHz uint32

	resetPulse bool
	lastOut    types.PanelOutputs
	published  bool
	prevFault  bool
}

// Start launches the controller service in a goroutine.
func Start(ctx context.Context, conn *bus.Connection) {
	s := &Service{
		conn:   conn,
		cfg:    core.DefaultConfig(),
		tickHz: defaultTickHz,
	}
	s.st = core.NewState(s.cfg)
	s.in.Enable = true
	go s.run(ctx)
}

func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	inSub := s.conn.Subscribe(topicInputs)
	ctrlSub := s.conn.Subscribe(topicControl)
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(inSub)
	defer s.conn.Unsubscribe(ctrlSub)

	s.publishState("idle", "awaiting_inputs", nil)

	tick := time.NewTicker(s.tickPeriod())
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg := <-cfgSub.Channel():
			if m, ok := msg.Payload.(map[string]any); ok {
				s.applyConfig(m)
				tick.Reset(s.tickPeriod())
				s.publishState("running", "reconfigured", nil)
			}

		case msg := <-inSub.Channel():
			s.latchInputs(msg.Payload)

		case msg := <-ctrlSub.Channel():
			s.handleControl(msg)

		case <-tick.C:
			s.step()
		}
	}
}

// -----------------------------------------------------------------------------
// Tick
// -----------------------------------------------------------------------------

// step advances the core one tick and publishes the outputs when they change.
func (s *Service) step() {
	in := s.in
	in.Reset = s.resetPulse
	s.resetPulse = false

	out := s.st.Step(in, s.cfg)
	s.publishOutputs(out)

	if s.st.TempFault != s.prevFault {
		s.prevFault = s.st.TempFault
		s.conn.Publish(s.conn.NewMessage(topicFault, types.FaultEvent{
			Active:      s.st.TempFault,
			Temperature: s.st.Temperature,
			TsMs:        timex.NowMs(),
		}, false))
	}
}

func (s *Service) publishOutputs(out core.Outputs) {
	status, _ := core.EncodeOutputs(out)
	p := types.PanelOutputs{
		PowerStatus: out.PowerStatus,
		Headlight:   out.Headlight,
		Horn:        out.Horn,
		Indicator:   out.Indicator,
		MotorPWM:    out.MotorPWM,
		Overheat:    out.Overheat,
		Fault:       out.Fault,
		Enabled:     out.Enabled,
		MotorSpeed:  out.MotorSpeed,
		DutyCycle:   s.st.PWMDuty,
		Temperature: s.st.Temperature,
		Status:      status,
	}
	// The PWM comparator flips every few ticks by design; publishing each
	// flip would flood the bus. Mask it out of the change detection.
	changed := p
	changed.MotorPWM = false
	changed.Status &^= uint8(types.StatusMotorPWM)
	last := s.lastOut
	last.MotorPWM = false
	last.Status &^= uint8(types.StatusMotorPWM)
	if s.published && changed == last {
		return
	}
	s.lastOut = p
	s.published = true
	s.conn.Publish(s.conn.NewMessage(topicOutputs, p, true))
}

// -----------------------------------------------------------------------------
// Inputs + control
// -----------------------------------------------------------------------------

// latchInputs accepts either a decoded PanelInputs or a raw PanelVector.
func (s *Service) latchInputs(payload any) {
	switch v := payload.(type) {
	case types.PanelInputs:
		s.in = core.Inputs{
			Enable:       s.in.Enable,
			PowerPLC:     v.PowerPLC,
			PowerHMI:     v.PowerHMI,
			Mode:         core.Mode(v.Mode & 0x07),
			SourceHMI:    v.SourceHMI,
			HeadlightPLC: v.HeadlightPLC,
			HeadlightHMI: v.HeadlightHMI,
			HornPLC:      v.HornPLC,
			HornHMI:      v.HornHMI,
			IndicatorPLC: v.IndicatorPLC,
			IndicatorHMI: v.IndicatorHMI,
			Accelerator:  v.Accelerator & 0x0F,
			Brake:        v.Brake & 0x0F,
		}
	case types.PanelVector:
		ena := s.in.Enable
		s.in = core.DecodeInputs(v.Primary, v.Bidir, true, ena)
	}
}

func (s *Service) handleControl(msg *bus.Message) {
	verb, _ := msg.Topic[len(msg.Topic)-1].(string)
	switch verb {
	case ctrlReset:
		s.resetPulse = true
	case ctrlEnable:
		if on, ok := msg.Payload.(bool); ok {
			s.in.Enable = on
		}
	case ctrlTickNow:
		s.step()
		s.conn.Reply(msg, s.lastOut, false)
	default:
		s.conn.Reply(msg, string(errcode.UnknownVerb), false)
	}
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

func (s *Service) applyConfig(m map[string]any) {
	if hz, ok := num(m, "tick_hz"); ok {
		s.tickHz = uint32(mathx.Clamp(hz, 1, 1_000_000))
	}
	if v, ok := num(m, "temp_interval_ticks"); ok {
		s.cfg.TempInterval = uint32(mathx.Clamp(v, 1, 1<<30))
	}
	if v, ok := num(m, "fault_set_at"); ok {
		s.cfg.FaultSetAt = uint8(mathx.Clamp(v, 0, 255))
	}
	if v, ok := num(m, "fault_clear_at"); ok {
		s.cfg.FaultClearAt = uint8(mathx.Clamp(v, 0, 255))
	}
	if v, ok := num(m, "temp_ceiling"); ok {
		s.cfg.TempCeiling = uint8(mathx.Clamp(v, 0, 255))
	}
	if v, ok := num(m, "reset_sync_ticks"); ok {
		s.cfg.ResetSyncTicks = uint8(mathx.Clamp(v, 0, 255))
	}
}

func num(m map[string]any, key string) (float64, bool) {
	v, ok := m[key].(float64)
	return v, ok
}

func (s *Service) tickPeriod() time.Duration {
	return timex.PeriodFromHz(s.tickHz)
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,
		"status": status,
		"ts_ms":  timex.NowMs(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(topicState, payload, true))
}
