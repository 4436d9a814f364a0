package linux

import (
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/corvuslabs/gatt"
)

func TestPeripheralIDStable(t *testing.T) {
	a := peripheralID("aa:bb:cc:dd:ee:ff")
	b := peripheralID("AA:BB:CC:DD:EE:FF")
	if !a.Equal(b) {
		t.Errorf("case-insensitive MACs map to %v and %v, want equal", a, b)
	}
	c := peripheralID("aa:bb:cc:dd:ee:00")
	if a.Equal(c) {
		t.Error("distinct MACs map to the same identifier")
	}
}

func TestSendDuringCloseDoesNotPanic(t *testing.T) {
	b := &Backend{
		log:    logrus.StandardLogger(),
		events: make(chan gatt.Event, 4),
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range b.events {
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.send(gatt.EvtStateChanged{State: gatt.StatePoweredOn})
			}
		}()
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	wg.Wait()
	<-drained

	// Late emitters from watcher goroutines are dropped, not panicked.
	b.send(gatt.EvtStateChanged{State: gatt.StatePoweredOff})
	if err := b.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestErrUnknownEntityNamesUUID(t *testing.T) {
	u := peripheralID("aa:bb:cc:dd:ee:ff")
	err := errUnknownEntity(u)
	if err == nil || !strings.Contains(err.Error(), u.String()) {
		t.Errorf("errUnknownEntity(%v) = %v, want the identifier in the message", u, err)
	}
}
