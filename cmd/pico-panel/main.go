//go:build rp2040 || rp2350

// cmd/pico-panel/main.go
//
// Pico target: samples the panel input pins into raw vectors, runs the full
// service stack, drives the status pins from the controller outputs, and
// exposes the link to an upstream host over UART0.
package main

import (
	"context"
	"io"
	"machine"
	"time"

	"panelcode-go/bus"
	"panelcode-go/services/bridge"
	"panelcode-go/services/config"
	"panelcode-go/services/controller"
	"panelcode-go/services/heartbeat"
	"panelcode-go/services/probe"
	"panelcode-go/types"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
	"tinygo.org/x/drivers"
)

const deviceID = "pico"

// -----------------------------------------------------------------------------
// Pin map
// -----------------------------------------------------------------------------

// Primary input byte: bit i on primaryPins[i].
var primaryPins = [8]machine.Pin{
	machine.GPIO2, machine.GPIO3, machine.GPIO4, machine.GPIO5,
	machine.GPIO6, machine.GPIO7, machine.GPIO8, machine.GPIO9,
}

// Bidirectional byte (pedals / accessory requests), sampled as inputs.
var bidirPins = [8]machine.Pin{
	machine.GPIO10, machine.GPIO11, machine.GPIO12, machine.GPIO13,
	machine.GPIO14, machine.GPIO15, machine.GPIO16, machine.GPIO17,
}

// Packed status byte: bit i on statusPins[i].
var statusPins = [8]machine.Pin{
	machine.GPIO18, machine.GPIO19, machine.GPIO20, machine.GPIO21,
	machine.GPIO22, machine.GPIO26, machine.GPIO27, machine.GPIO28,
}

const (
	sampleHz  = 1000
	i2cSDAPin = machine.GPIO0
	i2cSCLPin = machine.GPIO1
)

func configurePins() {
	for _, p := range primaryPins {
		p.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
	}
	for _, p := range bidirPins {
		p.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
	}
	for _, p := range statusPins {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.Low()
	}
}

func sampleByte(pins *[8]machine.Pin) uint8 {
	var v uint8
	for i, p := range pins {
		if p.Get() {
			v |= 1 << uint(i)
		}
	}
	return v
}

func driveByte(pins *[8]machine.Pin, v uint8) {
	for i, p := range pins {
		p.Set(v&(1<<uint(i)) != 0)
	}
}

// -----------------------------------------------------------------------------
// UART dial for the bridge
// -----------------------------------------------------------------------------

type uartLink struct {
	u   *uartx.UART
	ctx context.Context
}

func (l *uartLink) Read(p []byte) (int, error)  { return l.u.RecvSomeContext(l.ctx, p) }
func (l *uartLink) Write(p []byte) (int, error) { return l.u.Write(p) }
func (l *uartLink) Close() error                { return nil }

func dialUART(ctx context.Context, cfg bridge.UARTConfig) (io.ReadWriteCloser, error) {
	hw := uartx.UART0
	err := hw.Configure(uartx.UARTConfig{
		BaudRate: uint32(cfg.Baud),
		TX:       machine.Pin(cfg.TxPin),
		RX:       machine.Pin(cfg.RxPin),
	})
	if err != nil {
		return nil, err
	}
	return &uartLink{u: hw, ctx: ctx}, nil
}

// -----------------------------------------------------------------------------
// I2C factory for the probe
// -----------------------------------------------------------------------------

type picoI2C struct{}

func (picoI2C) ByID(id string) (drivers.I2C, bool) {
	switch id {
	case "i2c0":
		return machine.I2C0, true
	case "i2c1":
		return machine.I2C1, true
	}
	return nil, false
}

func setupI2C() {
	i2cSDAPin.Configure(machine.PinConfig{Mode: machine.PinI2C})
	i2cSCLPin.Configure(machine.PinConfig{Mode: machine.PinI2C})
	_ = machine.I2C0.Configure(machine.I2CConfig{
		SDA:       i2cSDAPin,
		SCL:       i2cSCLPin,
		Frequency: 400_000,
	})
}

// -----------------------------------------------------------------------------
// Sampler + driver loops
// -----------------------------------------------------------------------------

// samplePanel publishes the raw input vector whenever it changes.
func samplePanel(ctx context.Context, conn *bus.Connection) {
	period := time.Second / sampleHz
	var last types.PanelVector
	sent := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(period):
		}
		vec := types.PanelVector{
			Primary: sampleByte(&primaryPins),
			Bidir:   sampleByte(&bidirPins),
		}
		if sent && vec == last {
			continue
		}
		last, sent = vec, true
		conn.Publish(conn.NewMessage(bus.Topic{"panel", "inputs"}, vec, false))
	}
}

// drivePanel mirrors the packed status byte onto the output pins.
func drivePanel(ctx context.Context, conn *bus.Connection) {
	sub := conn.Subscribe(bus.Topic{"panel", "outputs"})
	defer conn.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-sub.Channel():
			if out, ok := m.Payload.(types.PanelOutputs); ok {
				driveByte(&statusPins, out.Status)
			}
		}
	}
}

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("[pico-panel] boot")

	configurePins()
	setupI2C()
	bridge.UARTDial = dialUART

	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, deviceID)

	b := bus.NewBus(8)
	config.NewConfigService().Start(ctx, b.NewConnection("config"))
	controller.Start(ctx, b.NewConnection("controller"))
	heartbeat.Start(ctx, b.NewConnection("heartbeat"))
	probe.Start(ctx, b.NewConnection("probe"), picoI2C{})
	go bridge.Start(ctx, b.NewConnection("bridge"))

	go samplePanel(ctx, b.NewConnection("sampler"))
	go drivePanel(ctx, b.NewConnection("driver"))

	// Park the main goroutine; everything runs on the bus.
	beat := b.NewConnection("boot-log")
	sub := beat.Subscribe(bus.Topic{"heartbeat"})
	for m := range sub.Channel() {
		if p, ok := m.Payload.(map[string]any); ok {
			if seq, ok := p["seq"].(uint32); ok {
				println("[pico-panel] beat", seq)
			}
		}
	}
}
