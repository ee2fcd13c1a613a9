package main

import (
	"context"
	"time"

	"panelcode-go/bus"
	"panelcode-go/services/config"
	"panelcode-go/services/controller"
	"panelcode-go/services/heartbeat"
)

// Minimal smoke binary: boots the stack with the simulator config and prints
// heartbeats. The real entry points live under cmd/.
func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("boot")

	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, "panel-sim")

	b := bus.NewBus(8)
	config.NewConfigService().Start(ctx, b.NewConnection("config"))
	controller.Start(ctx, b.NewConnection("controller"))
	heartbeat.Start(ctx, b.NewConnection("heartbeat"))

	mon := b.NewConnection("mon")
	sub := mon.Subscribe(bus.Topic{"heartbeat"})
	for m := range sub.Channel() {
		if p, ok := m.Payload.(map[string]any); ok {
			if seq, ok := p["seq"].(uint32); ok {
				println("heartbeat", seq)
			}
		}
	}
}
