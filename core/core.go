// core/core.go
//
// Cycle-stepped control core for the accessory panel. One Step call is one
// clock tick: it consumes the sampled inputs, updates every register field
// from a snapshot of the previous tick's state, and derives the output
// vector from the post-update state. No goroutines, no blocking, no I/O.
package core

// Mode is the 3-bit operation selector sampled each tick.
type Mode uint8

const (
	ModePower     Mode = 0 // power arbitration only
	ModeHeadlight Mode = 1
	ModeHorn      Mode = 2
	ModeIndicator Mode = 3
	ModeMotor     Mode = 4 // accelerator/brake capture + speed computation
	ModePWM       Mode = 5 // duty-cycle latch
	ModeTempRead  Mode = 6 // readout only; thermal model runs regardless
	ModeIdle      Mode = 7 // clear speed, duty and all latches
)

// Config fixes the thermal model and reset behaviour.
// All values have hardware-reference defaults; see DefaultConfig.
type Config struct {
	TempInterval   uint32 // ticks between temperature steps
	FaultSetAt     uint8  // fault latches at or above this temperature
	FaultClearAt   uint8  // fault releases at or below this temperature
	TempCeiling    uint8  // model never rises past this
	TempFloor      uint8  // ambient baseline; model never decays below it
	HotSpeed       uint8  // motor speed above which temperature climbs
	ResetSyncTicks uint8  // ticks held idle after reset release (0 = immediate)
}

// DefaultConfig returns the reference parameters.
func DefaultConfig() Config {
	return Config{
		TempInterval: 1024,
		FaultSetAt:   85,
		FaultClearAt: 75,
		TempCeiling:  100,
		TempFloor:    25,
		HotSpeed:     50,
	}
}

// Inputs is the sampled input set for one tick.
type Inputs struct {
	Reset  bool // asserted reset; overrides everything this tick
	Enable bool // external gate; deasserted holds all state

	PowerPLC bool
	PowerHMI bool

	Mode      Mode
	SourceHMI bool // selects the HMI request over the PLC one in modes 1..3

	HeadlightPLC, HeadlightHMI bool
	HornPLC, HornHMI           bool
	IndicatorPLC, IndicatorHMI bool

	Accelerator uint8 // 4-bit
	Brake       uint8 // 4-bit
}

// State is the full register bank, mutated exactly once per tick.
type State struct {
	SystemEnabled bool

	Accelerator uint8 // latched in motor mode
	Brake       uint8

	MotorSpeed uint8
	PWMDuty    uint8
	PWMCounter uint8 // free-running modulo-256 ramp

	Temperature uint8
	TempFault   bool

	Headlight   bool
	Horn        bool
	Indicator   bool
	MotorActive bool
	PWMActive   bool

	tempTicks uint32 // ticks since the last temperature step
	syncLeft  uint8  // reset-synchroniser countdown
}

// Outputs is the derived signal vector after a tick. It is a pure function
// of the post-update state; deriving it mutates nothing.
type Outputs struct {
	PowerStatus bool
	Headlight   bool
	Horn        bool
	Indicator   bool
	MotorPWM    bool
	Overheat    bool
	Fault       bool
	Enabled     bool
	MotorSpeed  uint8
}

// NewState returns the reset state: all zero except the ambient temperature
// and the reset-synchroniser countdown.
func NewState(cfg Config) State {
	return State{
		Temperature: cfg.TempFloor,
		syncLeft:    cfg.ResetSyncTicks,
	}
}

// Step advances the core by one tick.
//
// Register semantics: every field of the next state is computed from the
// previous tick's values (and this tick's inputs), never from a field
// already updated within the same call. The one-tick pipeline this implies
// is visible in motor/PWM mode: ModePWM latches the speed registered on an
// earlier tick.
func (s *State) Step(in Inputs, cfg Config) Outputs {
	// Reset overrides all other logic and re-initialises within one tick.
	if in.Reset {
		*s = NewState(cfg)
		return s.Outputs()
	}

	// Deasserted enable holds state; outputs reflect the held registers.
	if !in.Enable {
		return s.Outputs()
	}

	// Bounded activation delay after reset release. No steady-state effect.
	if s.syncLeft > 0 {
		s.syncLeft--
		return s.Outputs()
	}

	prev := *s

	// Power arbitration is evaluated and latched every tick regardless of mode.
	s.SystemEnabled = in.PowerPLC || in.PowerHMI

	if !s.SystemEnabled {
		// Power loss clears speed, duty and every activity latch.
		s.MotorSpeed = 0
		s.PWMDuty = 0
		s.Headlight = false
		s.Horn = false
		s.Indicator = false
		s.MotorActive = false
		s.PWMActive = false
	} else {
		switch in.Mode {
		case ModePower:
			// Status already latched above.

		case ModeHeadlight:
			s.Headlight = pick(in.SourceHMI, in.HeadlightHMI, in.HeadlightPLC)

		case ModeHorn:
			s.Horn = pick(in.SourceHMI, in.HornHMI, in.HornPLC)

		case ModeIndicator:
			s.Indicator = pick(in.SourceHMI, in.IndicatorHMI, in.IndicatorPLC)

		case ModeMotor:
			s.Accelerator = in.Accelerator & 0x0F
			s.Brake = in.Brake & 0x0F
			s.MotorActive = true
			if prev.TempFault {
				// Derate: halve on every faulted tick spent in this mode.
				s.MotorSpeed = prev.MotorSpeed >> 1
			} else if s.Accelerator > s.Brake {
				// 8-bit truncating shift, exactly as the register would.
				s.MotorSpeed = (s.Accelerator - s.Brake) << 4
			} else {
				s.MotorSpeed = 0
			}

		case ModePWM:
			if prev.TempFault {
				s.PWMDuty = prev.MotorSpeed >> 1
			} else {
				s.PWMDuty = prev.MotorSpeed
			}
			s.PWMActive = prev.MotorSpeed > 0

		case ModeTempRead:
			// Readout only. The thermal model below runs every tick anyway.

		case ModeIdle:
			s.MotorSpeed = 0
			s.PWMDuty = 0
			s.Headlight = false
			s.Horn = false
			s.Indicator = false
			s.MotorActive = false
			s.PWMActive = false

		default:
			// 3-bit field: unreachable. Hold state.
		}
	}

	// Thermal model: one degree per interval, independent of mode.
	s.tempTicks++
	if s.tempTicks >= cfg.TempInterval {
		s.tempTicks = 0
		hot := s.SystemEnabled && prev.MotorSpeed > cfg.HotSpeed
		if hot && s.Temperature < cfg.TempCeiling {
			s.Temperature++
		} else if s.Temperature > cfg.TempFloor {
			s.Temperature--
		}
	}

	// Hysteresis: latch at FaultSetAt, release at FaultClearAt, hold between.
	switch {
	case s.Temperature >= cfg.FaultSetAt:
		s.TempFault = true
	case s.Temperature <= cfg.FaultClearAt:
		s.TempFault = false
	}

	// PWM ramp: free-running while powered, pinned at zero otherwise.
	if s.SystemEnabled {
		s.PWMCounter = prev.PWMCounter + 1
	} else {
		s.PWMCounter = 0
	}

	return s.Outputs()
}

// Outputs derives the signal vector from the current registers.
func (s *State) Outputs() Outputs {
	return Outputs{
		PowerStatus: s.SystemEnabled,
		Headlight:   s.Headlight && s.SystemEnabled,
		Horn:        s.Horn && s.SystemEnabled,
		Indicator:   s.Indicator && s.SystemEnabled,
		MotorPWM: s.SystemEnabled && s.PWMActive &&
			s.PWMDuty > 0 && s.PWMCounter < s.PWMDuty,
		Overheat:   s.TempFault,
		Fault:      s.TempFault,
		Enabled:    s.SystemEnabled,
		MotorSpeed: s.MotorSpeed,
	}
}

func pick(hmi bool, hmiVal, plcVal bool) bool {
	if hmi {
		return hmiVal
	}
	return plcVal
}
