package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Populate embeddedConfigs at build time (e.g. via code generation) or
// manually during development.
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

const cfgPanelSim = `{
  "controller": {
      "tick_hz": 1000,
      "temp_interval_ticks": 1024,
      "fault_set_at": 85,
      "fault_clear_at": 75,
      "temp_ceiling": 100,
      "reset_sync_ticks": 0
  },
  "heartbeat": {
      "interval": 2
  }
}`

const cfgPico = `{
  "controller": {
      "tick_hz": 1000,
      "temp_interval_ticks": 1024,
      "fault_set_at": 85,
      "fault_clear_at": 75,
      "temp_ceiling": 100,
      "reset_sync_ticks": 2
  },
  "heartbeat": {
      "interval": 2
  },
  "bridge": {
      "transport": {
          "type": "uart",
          "uart": {"baud": 115200, "rx_pin": 1, "tx_pin": 0}
      }
  },
  "probe": {
      "bus": "i2c0",
      "interval_ms": 1000
  }
}`

var embeddedConfigs = map[string][]byte{
	"panel-sim": []byte(cfgPanelSim),
	"pico":      []byte(cfgPico),
}
