// cmd/panelsim/main.go
//
// Host-side simulator: boots the full service stack on an in-process bus and
// runs a scripted drive cycle against the controller, printing the panel
// outputs as they change.
package main

import (
	"context"
	"fmt"
	"time"

	"panelcode-go/bus"
	"panelcode-go/services/config"
	"panelcode-go/services/controller"
	"panelcode-go/services/heartbeat"
	"panelcode-go/types"
	"panelcode-go/x/ramp"
)

// ---------- Configuration ----------

const (
	deviceID = "panel-sim"

	// Sequencing timing
	phaseDwell  = 2 * time.Second
	sweepMs     = 3000
	sweepSteps  = 15
	settleDelay = 100 * time.Millisecond

	// Cycles: 0 = loop forever
	cyclesToRun = 1
)

// ---------- Topics ----------

var (
	tInputs  = bus.Topic{"panel", "inputs"}
	tOutputs = bus.Topic{"panel", "outputs"}
	tFault   = bus.Topic{"panel", "event", "fault"}
	tBeat    = bus.Topic{"heartbeat"}
)

// ---------- Helpers ----------

func monitor(ctx context.Context, conn *bus.Connection) {
	outSub := conn.Subscribe(tOutputs)
	faultSub := conn.Subscribe(tFault)
	beatSub := conn.Subscribe(tBeat)

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-outSub.Channel():
			out, ok := m.Payload.(types.PanelOutputs)
			if !ok {
				continue
			}
			fmt.Printf("[panel] speed=%-3d duty=%-3d temp=%-3d status=%s\n",
				out.MotorSpeed, out.DutyCycle, out.Temperature, statusString(out.Status))
		case m := <-faultSub.Channel():
			if ev, ok := m.Payload.(types.FaultEvent); ok {
				fmt.Printf("[fault] active=%v temp=%d\n", ev.Active, ev.Temperature)
			}
		case m := <-beatSub.Channel():
			if p, ok := m.Payload.(map[string]any); ok {
				fmt.Printf("[beat ] seq=%v uptime_ms=%v\n", p["seq"], p["uptime_ms"])
			}
		}
	}
}

func statusString(status uint8) string {
	s := ""
	it := types.NewBitIter(types.StatusBits(status), types.StatusTable[:])
	for {
		name, ok := it.Next()
		if !ok {
			break
		}
		if s != "" {
			s += "|"
		}
		s += name
	}
	if s == "" {
		return "-"
	}
	return s
}

// driveCycle walks the panel through a representative session: power on,
// accessories, a pedal sweep in motor mode, PWM output, then idle and off.
func driveCycle(ctx context.Context, drv *bus.Connection) {
	in := types.PanelInputs{}
	send := func() {
		drv.Publish(drv.NewMessage(tInputs, in, false))
		time.Sleep(settleDelay)
	}

	fmt.Println("[sim] power on (PLC)")
	in.PowerPLC = true
	in.Mode = 0
	send()
	time.Sleep(phaseDwell)

	fmt.Println("[sim] headlight on (HMI override)")
	in.Mode = 1
	in.SourceHMI = true
	in.HeadlightHMI = true
	send()
	time.Sleep(phaseDwell)

	fmt.Println("[sim] motor mode, sweeping accelerator 0 -> 15")
	in.Mode = 4
	ramp.StartLinear(0, 15, 15, sweepMs, sweepSteps,
		func(d time.Duration) bool {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(d):
				return true
			}
		},
		func(level uint8) {
			in.Accelerator = level
			send()
		})
	time.Sleep(phaseDwell)

	fmt.Println("[sim] braking")
	in.Brake = 15
	send()
	time.Sleep(phaseDwell)
	in.Brake = 0
	in.Accelerator = 12
	send()

	fmt.Println("[sim] pwm mode")
	in.Mode = 5
	send()
	time.Sleep(phaseDwell)

	fmt.Println("[sim] idle, power off")
	in.Mode = 7
	send()
	time.Sleep(phaseDwell)
	in.PowerPLC = false
	send()
	time.Sleep(phaseDwell)
}

func main() {
	fmt.Println("[sim] boot")
	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, deviceID)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := bus.NewBus(32)
	config.NewConfigService().Start(ctx, b.NewConnection("config"))
	controller.Start(ctx, b.NewConnection("controller"))
	heartbeat.Start(ctx, b.NewConnection("heartbeat"))

	go monitor(ctx, b.NewConnection("monitor"))

	// Let retained config land before driving.
	time.Sleep(200 * time.Millisecond)

	drv := b.NewConnection("sim")
	for cycle := 1; cyclesToRun == 0 || cycle <= cyclesToRun; cycle++ {
		fmt.Printf("[sim] drive cycle %d\n", cycle)
		driveCycle(ctx, drv)
	}
	fmt.Println("[sim] done")
}
