package gatt

import (
	"testing"
	"time"
)

func TestNotifierDeliversInOrder(t *testing.T) {
	n := newNotifier()
	defer n.stop()

	out := make(chan int, 100)
	for i := 0; i < 100; i++ {
		i := i
		n.push(func() { out <- i })
	}
	for i := 0; i < 100; i++ {
		select {
		case got := <-out:
			if got != i {
				t.Fatalf("delivery %d arrived as %d", i, got)
			}
		case <-time.After(waitTime):
			t.Fatalf("timed out waiting for delivery %d", i)
		}
	}
}

func TestNotifierDrainsOnStop(t *testing.T) {
	n := newNotifier()
	done := make(chan struct{})
	n.push(func() { time.Sleep(10 * time.Millisecond) })
	n.push(func() { close(done) })
	n.stop()

	select {
	case <-done:
	case <-time.After(waitTime):
		t.Fatal("queued callback dropped on stop")
	}
	// Pushes after stop are discarded, not run.
	n.push(func() { t.Error("callback ran after stop") })
	time.Sleep(50 * time.Millisecond)
}

func TestCallbackMayCallBackIntoAPI(t *testing.T) {
	b := newFakeBackend()
	c, err := NewCentral(b)
	if err != nil {
		t.Fatalf("NewCentral: %v", err)
	}
	// Reentrant call from a callback: connecting from within the
	// discovery callback must not deadlock the loop.
	done := make(chan struct{})
	c.Handle(PeripheralDiscovered(func(p *Peripheral, a *Advertisement, rssi int) {
		c.Connect(p)
		close(done)
	}))
	c.Init(func(*Central, State) {})
	t.Cleanup(func() { c.Close() })

	b.events <- EvtStateChanged{State: StatePoweredOn}
	b.events <- EvtPeripheralDiscovered{UUID: testPeriphID, Name: "sensor"}
	select {
	case <-done:
	case <-time.After(waitTime):
		t.Fatal("reentrant callback deadlocked")
	}
	waitCall(t, b, "connect "+testPeriphID.String())
}
