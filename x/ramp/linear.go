package ramp

import (
	"time"

	"panelcode-go/x/mathx"
)

// Step sets the new pedal level in [0..top].
type Step func(level uint8)

// Tick waits for d and reports whether to continue (false => cancelled).
type Tick func(d time.Duration) bool

// StartLinear runs a synchronous (caller-driven) integer pedal sweep from
// cur to target. Call it from a goroutine and provide Tick to handle timing
// and cancellation. steps==0 or durationMs==0 snaps to 'to'.
func StartLinear(cur, to, top uint8, durationMs uint32, steps uint8, tick Tick, set Step) {
	if steps == 0 || durationMs == 0 {
		set(mathx.Min(to, top))
		return
	}
	d := int16(to) - int16(cur)
	st := int16(steps)
	acc := int16(0)
	cur16 := int16(cur)
	stepDurMs := durationMs / uint32(steps)
	if stepDurMs == 0 {
		stepDurMs = 1
	}
	stepDur := time.Duration(stepDurMs) * time.Millisecond

	for i := uint8(1); i < steps; i++ {
		if !tick(stepDur) {
			return
		}
		acc += d
		inc := acc / st
		if inc != 0 {
			acc -= inc * st
			cur16 = mathx.Clamp(cur16+inc, 0, int16(top))
			set(uint8(cur16))
		}
	}
	set(mathx.Min(to, top))
}
