// core/wire.go
//
// Fixed-width boundary vectors. The core treats these bytes as opaque; this
// file is the one place that knows the bit layout.
package core

// Primary input vector layout.
const (
	inModeMask  uint8 = 0x07   // bits 2:0
	inPowerPLC  uint8 = 1 << 3
	inPowerHMI  uint8 = 1 << 4
	inSourceHMI uint8 = 1 << 5
	inHeadPLC   uint8 = 1 << 6
	inHeadHMI   uint8 = 1 << 7
)

// Bidirectional vector: upper nibble accelerator, lower nibble brake.
// In horn/indicator modes the two low bits carry that mode's PLC/HMI
// requests instead; the partition itself never changes at runtime.
const (
	bidirHornPLC      uint8 = 1 << 0
	bidirHornHMI      uint8 = 1 << 1
	bidirIndicatorPLC uint8 = 1 << 0
	bidirIndicatorHMI uint8 = 1 << 1
)

// DirMask is the fixed drive partition of the bidirectional vector:
// upper nibble core-driven (motor speed), lower nibble external input.
const DirMask uint8 = 0xF0

// Output status vector layout.
const (
	outPower     uint8 = 1 << 0
	outHeadlight uint8 = 1 << 1
	outHorn      uint8 = 1 << 2
	outIndicator uint8 = 1 << 3
	outMotorPWM  uint8 = 1 << 4
	outOverheat  uint8 = 1 << 5
	outFault     uint8 = 1 << 6
	outEnabled   uint8 = 1 << 7
)

// DecodeInputs unpacks the per-tick input bytes. rstN is the active-low
// external reset; ena the external enable gate.
func DecodeInputs(primary, bidir uint8, rstN, ena bool) Inputs {
	in := Inputs{
		Reset:  !rstN,
		Enable: ena,

		Mode:      Mode(primary & inModeMask),
		PowerPLC:  primary&inPowerPLC != 0,
		PowerHMI:  primary&inPowerHMI != 0,
		SourceHMI: primary&inSourceHMI != 0,

		HeadlightPLC: primary&inHeadPLC != 0,
		HeadlightHMI: primary&inHeadHMI != 0,

		Accelerator: bidir >> 4,
		Brake:       bidir & 0x0F,
	}

	// Mode-dependent reuse of the low bidirectional bits.
	switch in.Mode {
	case ModeHorn:
		in.HornPLC = bidir&bidirHornPLC != 0
		in.HornHMI = bidir&bidirHornHMI != 0
	case ModeIndicator:
		in.IndicatorPLC = bidir&bidirIndicatorPLC != 0
		in.IndicatorHMI = bidir&bidirIndicatorHMI != 0
	}

	return in
}

// EncodeInputs packs an Inputs value back into the two wire bytes.
// Inverse of DecodeInputs for fields the wire can carry.
func EncodeInputs(in Inputs) (primary, bidir uint8) {
	primary = uint8(in.Mode) & inModeMask
	if in.PowerPLC {
		primary |= inPowerPLC
	}
	if in.PowerHMI {
		primary |= inPowerHMI
	}
	if in.SourceHMI {
		primary |= inSourceHMI
	}
	if in.HeadlightPLC {
		primary |= inHeadPLC
	}
	if in.HeadlightHMI {
		primary |= inHeadHMI
	}

	bidir = in.Accelerator<<4 | in.Brake&0x0F
	switch in.Mode {
	case ModeHorn:
		bidir &= DirMask
		if in.HornPLC {
			bidir |= bidirHornPLC
		}
		if in.HornHMI {
			bidir |= bidirHornHMI
		}
	case ModeIndicator:
		bidir &= DirMask
		if in.IndicatorPLC {
			bidir |= bidirIndicatorPLC
		}
		if in.IndicatorHMI {
			bidir |= bidirIndicatorHMI
		}
	}
	return primary, bidir
}

// EncodeOutputs packs the output vector: the status byte and the speed byte.
// Only the core-driven upper nibble of the speed is exposed; the low nibble
// is zero-filled per DirMask.
func EncodeOutputs(o Outputs) (status, speed uint8) {
	if o.PowerStatus {
		status |= outPower
	}
	if o.Headlight {
		status |= outHeadlight
	}
	if o.Horn {
		status |= outHorn
	}
	if o.Indicator {
		status |= outIndicator
	}
	if o.MotorPWM {
		status |= outMotorPWM
	}
	if o.Overheat {
		status |= outOverheat
	}
	if o.Fault {
		status |= outFault
	}
	if o.Enabled {
		status |= outEnabled
	}
	speed = o.MotorSpeed & DirMask
	return status, speed
}
