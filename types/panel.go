package types

// ------------------------
// Panel inputs
// ------------------------

// PanelInputs is the decoded per-tick input set for the accessory panel.
// Published on panel/inputs by whichever collaborator samples the pins
// (simulator script, MCU main, or the bridge after decoding a frame).
type PanelInputs struct {
	PowerPLC     bool  `json:"power_plc"`
	PowerHMI     bool  `json:"power_hmi"`
	Mode         uint8 `json:"mode"` // 0..7
	SourceHMI    bool  `json:"source_hmi"`
	HeadlightPLC bool  `json:"headlight_plc"`
	HeadlightHMI bool  `json:"headlight_hmi"`
	HornPLC      bool  `json:"horn_plc"`
	HornHMI      bool  `json:"horn_hmi"`
	IndicatorPLC bool  `json:"indicator_plc"`
	IndicatorHMI bool  `json:"indicator_hmi"`
	Accelerator  uint8 `json:"accel"` // 0..15
	Brake        uint8 `json:"brake"` // 0..15
}

// PanelVector carries the raw fixed-width input bytes as seen on the wire.
// The controller decodes it itself; the bridge never interprets payloads.
type PanelVector struct {
	Primary uint8 `json:"primary"`
	Bidir   uint8 `json:"bidir"`
}

// ------------------------
// Panel outputs
// ------------------------

// Retained value: panel/outputs
type PanelOutputs struct {
	PowerStatus bool  `json:"power"`
	Headlight   bool  `json:"headlight"`
	Horn        bool  `json:"horn"`
	Indicator   bool  `json:"indicator"`
	MotorPWM    bool  `json:"motor_pwm"`
	Overheat    bool  `json:"overheat"`
	Fault       bool  `json:"fault"`
	Enabled     bool  `json:"enabled"`
	MotorSpeed  uint8 `json:"motor_speed"`
	DutyCycle   uint8 `json:"duty"`
	Temperature uint8 `json:"temp_c"`
	Status      uint8 `json:"status"` // packed status byte, see StatusTable
}

// FaultEvent is published on panel/event/fault at each thermal-fault edge.
type FaultEvent struct {
	Active      bool  `json:"active"`
	Temperature uint8 `json:"temp_c"`
	TsMs        int64 `json:"ts_ms"`
}

// ------------------------
// Controller configuration (config/controller)
// ------------------------

type ControllerConfig struct {
	TickHz            uint32 `json:"tick_hz"`
	TempIntervalTicks uint32 `json:"temp_interval_ticks"`
	FaultSetAt        uint8  `json:"fault_set_at"`
	FaultClearAt      uint8  `json:"fault_clear_at"`
	TempCeiling       uint8  `json:"temp_ceiling"`
	ResetSyncTicks    uint8  `json:"reset_sync_ticks"`
}

// ------------------------
// Probe (external SHTC3 telemetry)
// ------------------------

// Retained value: panel/probe/temperature
type ProbeValue struct {
	DeciC int16 `json:"deci_c"`
	TsMs  int64 `json:"ts_ms"`
}

type ProbeInfo struct {
	Sensor string `json:"sensor"`
	Bus    string `json:"bus"`
	Addr   uint16 `json:"addr"`
}

// ------------------------
// Status byte bitfield
// ------------------------

// Status bit layout of the packed output vector.
type StatusBits uint8

const (
	StatusPower     StatusBits = 1 << 0
	StatusHeadlight StatusBits = 1 << 1
	StatusHorn      StatusBits = 1 << 2
	StatusIndicator StatusBits = 1 << 3
	StatusMotorPWM  StatusBits = 1 << 4
	StatusOverheat  StatusBits = 1 << 5
	StatusFault     StatusBits = 1 << 6
	StatusEnabled   StatusBits = 1 << 7
)

// Generic pairing of a bit value with a printable name.
type BitName[T ~uint8] struct {
	Bit  T
	Name string
}

// BitIter is a zero-alloc iterator over set bits in a value, filtered by a table.
// Caller advances with Next(); no callbacks, no closures.
type BitIter[T ~uint8] struct {
	v     uint8
	i     int
	table []BitName[T]
}

// NewBitIter constructs an iterator over set bits present in v that also exist in table.
func NewBitIter[T ~uint8](v T, table []BitName[T]) BitIter[T] {
	return BitIter[T]{v: uint8(v), i: 0, table: table}
}

// Next returns the next SET bit: (name, ok). ok=false when done.
func (it *BitIter[T]) Next() (string, bool) {
	for it.i < len(it.table) {
		e := it.table[it.i]
		it.i++
		if (it.v & uint8(e.Bit)) != 0 {
			return e.Name, true
		}
	}
	return "", false
}

// Reset allows reusing the iterator.
func (it *BitIter[T]) Reset() { it.i = 0 }

// NextAny returns the next table entry: (name, set, ok).
// set indicates whether the bit is present in the value.
func (it *BitIter[T]) NextAny() (string, bool, bool) {
	if it.i >= len(it.table) {
		return "", false, false
	}
	e := it.table[it.i]
	it.i++
	set := (it.v & uint8(e.Bit)) != 0
	return e.Name, set, true
}

// StatusBits display (ordering is cosmetic).
var StatusTable = [...]BitName[StatusBits]{
	{StatusPower, "power"},
	{StatusHeadlight, "headlight"},
	{StatusHorn, "horn"},
	{StatusIndicator, "indicator"},
	{StatusMotorPWM, "motor_pwm"},
	{StatusOverheat, "overheat"},
	{StatusFault, "fault"},
	{StatusEnabled, "enabled"},
}
