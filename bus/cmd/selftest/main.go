//go:build rp2040 || rp2350

// bus/cmd/selftest/main.go
//
// On-device bus self-test: mirrors the host test suite so the broker can be
// verified on real hardware, where `go test` cannot run. Reports via USB CDC
// and the onboard LED (solid = pass, blink = fail).
package main

import (
	"context"
	"machine"
	"time"

	"panelcode-go/bus"
)

// --- tiny logger (avoid fmt on MCU) ------------------------------------------

func logln(s string) { println(s) }

func logf(format string, a ...interface{}) {
	out := make([]byte, 0, len(format)+16)
	argi := 0
	for i := 0; i < len(format); i++ {
		if format[i] == '%' && i+1 < len(format) {
			switch format[i+1] {
			case 's':
				if argi < len(a) {
					if s, ok := a[argi].(string); ok {
						out = append(out, s...)
					}
					argi++
				}
				i++
				continue
			case 'd':
				if argi < len(a) {
					if n, ok := a[argi].(int); ok {
						out = append(out, itoa(n)...)
					}
					argi++
				}
				i++
				continue
			}
		}
		out = append(out, format[i])
	}
	println(string(out))
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	sign := ""
	if i < 0 {
		sign = "-"
		i = -i
	}
	var buf [32]byte
	b := len(buf)
	for i > 0 {
		b--
		buf[b] = byte('0' + (i % 10))
		i /= 10
	}
	if sign != "" {
		b--
		buf[b] = '-'
	}
	return string(buf[b:])
}

// --- assertion helpers --------------------------------------------------------

func expectOne(sub *bus.Subscription, want string, timeout time.Duration) bool {
	select {
	case got := <-sub.Channel():
		s, ok := got.Payload.(string)
		return ok && s == want
	case <-time.After(timeout):
		return false
	}
}

func expectNone(sub *bus.Subscription, timeout time.Duration) bool {
	select {
	case <-sub.Channel():
		return false
	case <-time.After(timeout):
		return true
	}
}

// --- individual tests ---------------------------------------------------------

func testBasicPubSub() bool {
	b := bus.NewBus(4)
	conn := b.NewConnection("selftest")
	sub := conn.Subscribe(bus.T("panel", "inputs"))
	conn.Publish(conn.NewMessage(bus.T("panel", "inputs"), "hello", false))
	return expectOne(sub, "hello", 100*time.Millisecond)
}

func testRetained() bool {
	b := bus.NewBus(2)
	conn := b.NewConnection("selftest")
	conn.Publish(b.NewMessage(bus.T("panel", "outputs"), "persist", true))
	sub := conn.Subscribe(bus.T("panel", "outputs"))
	return expectOne(sub, "persist", 100*time.Millisecond)
}

func testWildcards() bool {
	b := bus.NewBus(16)
	c := b.NewConnection("selftest")

	sOne := c.Subscribe(bus.T("panel", "+", "fault"))
	sAny := c.Subscribe(bus.T("panel", "#"))
	sNo := c.Subscribe(bus.T("panel", "+", "temp"))

	c.Publish(b.NewMessage(bus.T("panel", "event", "fault"), "f1", false))
	if !expectOne(sOne, "f1", 200*time.Millisecond) {
		logln("wildcards: + miss")
		return false
	}
	if !expectOne(sAny, "f1", 200*time.Millisecond) {
		logln("wildcards: # miss")
		return false
	}
	if !expectNone(sNo, 60*time.Millisecond) {
		logln("wildcards: false match")
		return false
	}

	c.Publish(b.NewMessage(bus.T("panel", "state"), "s1", false))
	if !expectOne(sAny, "s1", 200*time.Millisecond) {
		logln("wildcards: # short topic miss")
		return false
	}
	return expectNone(sOne, 60*time.Millisecond)
}

func testRetainedClear() bool {
	b := bus.NewBus(16)
	c := b.NewConnection("selftest")

	c.Publish(b.NewMessage(bus.T("panel", "outputs"), "stale", true))
	c.Publish(b.NewMessage(bus.T("panel", "outputs"), nil, true))

	sub := c.Subscribe(bus.T("panel", "#"))
	return expectNone(sub, 100*time.Millisecond)
}

func testRequestReply() bool {
	b := bus.NewBus(8)
	req := b.NewConnection("requester")
	resp := b.NewConnection("responder")

	topic := bus.T("panel", "control", "tick_now")
	respSub := resp.Subscribe(topic)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if msg, ok := <-respSub.Channel(); ok {
			resp.Reply(msg, "OK", false)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	reply, err := req.RequestWait(ctx, b.NewMessage(topic, nil, false))
	resp.Unsubscribe(respSub)
	<-done

	if err != nil {
		return false
	}
	s, ok := reply.Payload.(string)
	return ok && s == "OK"
}

func testRequestTimeout() bool {
	b := bus.NewBus(8)
	req := b.NewConnection("requester")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := req.RequestWait(ctx, b.NewMessage(bus.T("panel", "noop"), nil, false))
	return err != nil
}

func testInvalidTokenPanics() (ok bool) {
	defer func() {
		ok = recover() != nil
	}()
	_ = bus.T([]byte{1, 2, 3}) // not comparable; must panic
	return false
}

// --- main ---------------------------------------------------------------------

type testFn struct {
	name string
	fn   func() bool
}

func main() {
	// Give the USB CDC time to enumerate so logs show up reliably.
	time.Sleep(250 * time.Millisecond)

	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	led.High() // signal "running"

	tests := []testFn{
		{"basic_pubsub", testBasicPubSub},
		{"retained", testRetained},
		{"wildcards", testWildcards},
		{"retained_clear", testRetainedClear},
		{"request_reply", testRequestReply},
		{"request_timeout", testRequestTimeout},
		{"invalid_token_panics", testInvalidTokenPanics},
	}

	passed, failed := 0, 0
	logln("== bus self-test starting ==")
	for _, tc := range tests {
		if tc.fn() {
			logf("[PASS] %s", tc.name)
			passed++
		} else {
			logf("[FAIL] %s", tc.name)
			failed++
		}
		time.Sleep(10 * time.Millisecond)
	}
	logf("== done: %d passed, %d failed ==", passed, failed)

	// LED: solid ON if all passed, otherwise slow blink forever.
	for {
		if failed == 0 {
			led.High()
			time.Sleep(2 * time.Second)
			continue
		}
		led.High()
		time.Sleep(250 * time.Millisecond)
		led.Low()
		time.Sleep(250 * time.Millisecond)
	}
}
