package gatt

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestServiceDiscoveryNarrowsOverReport(t *testing.T) {
	c, b, r := newTestCentral(t)
	p := discoverPeripheral(t, b, r, testPeriphID, "sensor")
	connectPeripheral(t, c, b, r, p)

	want := MustParseUUID("22222222-2222-2222-2222-222222222201")
	extra := MustParseUUID("22222222-2222-2222-2222-222222222202")
	if err := p.DiscoverServices([]UUID{want}); err != nil {
		t.Fatalf("DiscoverServices: %v", err)
	}
	waitCall(t, b, "discoverServices "+testPeriphID.String()+" filter=1")

	// The backend over-reports beyond the requested subset; only the
	// requested service becomes a wrapper.
	b.events <- EvtServicesDiscovered{Peripheral: testPeriphID, Services: []ServiceInfo{
		{UUID: want, Primary: true},
		{UUID: extra, Primary: true},
	}}
	res := <-r.services
	if res.err != nil {
		t.Fatalf("discovery failed: %v", res.err)
	}
	if len(res.ss) != 1 || !res.ss[0].UUID().Equal(want) {
		t.Fatalf("discovered %v, want exactly %s", res.ss, want)
	}
	if got := p.Service(extra); got != nil {
		t.Error("over-reported service got a wrapper")
	}
	if got := len(p.Services()); got != 1 {
		t.Errorf("len(Services()) = %d, want 1", got)
	}
}

func TestEmptyFilterSkipsBackend(t *testing.T) {
	c, b, r := newTestCentral(t)
	p := discoverPeripheral(t, b, r, testPeriphID, "sensor")
	connectPeripheral(t, c, b, r, p)

	if got := p.Services(); got != nil {
		t.Fatalf("Services() before discovery = %v, want nil", got)
	}
	if err := p.DiscoverServices([]UUID{}); err != nil {
		t.Fatalf("DiscoverServices: %v", err)
	}
	res := <-r.services
	if res.err != nil {
		t.Fatalf("discovery failed: %v", res.err)
	}
	if res.ss == nil || len(res.ss) != 0 {
		t.Fatalf("discovered = %v, want empty non-nil", res.ss)
	}
	wantNoCall(t, b)
	if got := p.Services(); got == nil || len(got) != 0 {
		t.Errorf("Services() = %v, want empty non-nil", got)
	}
}

func TestEmptyFilterLeavesInFlightDiscoveryAlone(t *testing.T) {
	c, b, r := newTestCentral(t)
	p := discoverPeripheral(t, b, r, testPeriphID, "sensor")
	connectPeripheral(t, c, b, r, p)

	if err := p.DiscoverServices(nil); err != nil {
		t.Fatalf("DiscoverServices: %v", err)
	}
	waitCall(t, b, "discoverServices "+testPeriphID.String()+" filter=-1")

	// An empty-filter request answers immediately but must not touch
	// the in-flight pass; its completion still has to land.
	if err := p.DiscoverServices([]UUID{}); err != nil {
		t.Fatalf("DiscoverServices: %v", err)
	}
	res := <-r.services
	if res.err != nil || res.ss == nil || len(res.ss) != 0 {
		t.Fatalf("empty-filter result = (%v, %v), want empty non-nil", res.ss, res.err)
	}

	b.events <- EvtServicesDiscovered{Peripheral: testPeriphID, Services: []ServiceInfo{
		{UUID: testSvcID, Primary: true},
	}}
	select {
	case res := <-r.services:
		if res.err != nil || len(res.ss) != 1 || !res.ss[0].UUID().Equal(testSvcID) {
			t.Fatalf("in-flight completion = (%v, %v), want the discovered service", res.ss, res.err)
		}
	case <-time.After(waitTime):
		t.Fatal("in-flight discovery completion dropped after empty-filter request")
	}
	if got := p.Service(testSvcID); got == nil {
		t.Error("discovered service missing from wrapper set")
	}
}

func TestDiscoveryRequiresConnection(t *testing.T) {
	_, b, r := newTestCentral(t)
	p := discoverPeripheral(t, b, r, testPeriphID, "sensor")
	if err := p.DiscoverServices(nil); err != ErrUnreachable {
		t.Fatalf("DiscoverServices = %v, want ErrUnreachable", err)
	}
}

func TestRediscoveryKeepsWrapperIdentity(t *testing.T) {
	c, b, r := newTestCentral(t)
	p := discoverPeripheral(t, b, r, testPeriphID, "sensor")
	connectPeripheral(t, c, b, r, p)
	s, cc := discoverGraph(t, b, r, p, testSvcID, testCharID)

	// A second pass reporting the same UUIDs must return the same
	// wrapper objects.
	if err := p.DiscoverServices(nil); err != nil {
		t.Fatalf("DiscoverServices: %v", err)
	}
	waitCall(t, b, "discoverServices "+testPeriphID.String()+" filter=-1")
	b.events <- EvtServicesDiscovered{Peripheral: testPeriphID, Services: []ServiceInfo{
		{UUID: testSvcID, Primary: true},
	}}
	res := <-r.services
	if len(res.ss) != 1 || res.ss[0] != s {
		t.Fatal("re-discovered service is a different wrapper")
	}
	if got := s.Characteristic(testCharID); got != cc[0] {
		t.Fatal("characteristic wrapper did not survive service re-discovery")
	}
}

func TestConcurrentDiscoveryCoalesces(t *testing.T) {
	c, b, r := newTestCentral(t)
	p := discoverPeripheral(t, b, r, testPeriphID, "sensor")
	connectPeripheral(t, c, b, r, p)

	if err := p.DiscoverServices(nil); err != nil {
		t.Fatalf("DiscoverServices: %v", err)
	}
	waitCall(t, b, "discoverServices "+testPeriphID.String()+" filter=-1")
	// Second request while the first is in flight coalesces onto it.
	if err := p.DiscoverServices(nil); err != nil {
		t.Fatalf("DiscoverServices: %v", err)
	}
	settle(c)
	wantNoCall(t, b)

	b.events <- EvtServicesDiscovered{Peripheral: testPeriphID, Services: []ServiceInfo{
		{UUID: testSvcID, Primary: true},
	}}
	if res := <-r.services; res.err != nil || len(res.ss) != 1 {
		t.Fatalf("discovery = (%v, %v), want one service", res.ss, res.err)
	}
	select {
	case res := <-r.services:
		t.Fatalf("coalesced request completed separately: %v", res.ss)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDiscoveryFailureReportsDiscoveryError(t *testing.T) {
	c, b, r := newTestCentral(t)
	p := discoverPeripheral(t, b, r, testPeriphID, "sensor")
	connectPeripheral(t, c, b, r, p)

	filter := []UUID{testSvcID}
	if err := p.DiscoverServices(filter); err != nil {
		t.Fatalf("DiscoverServices: %v", err)
	}
	waitCall(t, b, "discoverServices "+testPeriphID.String()+" filter=1")
	b.events <- EvtServicesDiscovered{Peripheral: testPeriphID, Err: fmt.Errorf("att timeout")}

	res := <-r.services
	var derr *DiscoveryError
	if !errors.As(res.err, &derr) {
		t.Fatalf("err = %v, want *DiscoveryError", res.err)
	}
	if !derr.Scope.Equal(testPeriphID) {
		t.Errorf("Scope = %s, want %s", derr.Scope, testPeriphID)
	}
	if len(derr.Filter) != 1 || !derr.Filter[0].Equal(testSvcID) {
		t.Errorf("Filter = %v, want %v", derr.Filter, filter)
	}
}

func TestDisconnectFailsInFlightDiscovery(t *testing.T) {
	c, b, r := newTestCentral(t)
	p := discoverPeripheral(t, b, r, testPeriphID, "sensor")
	connectPeripheral(t, c, b, r, p)

	if err := p.DiscoverServices(nil); err != nil {
		t.Fatalf("DiscoverServices: %v", err)
	}
	waitCall(t, b, "discoverServices "+testPeriphID.String()+" filter=-1")
	b.events <- EvtDisconnected{UUID: testPeriphID}

	res := <-r.services
	var derr *DiscoveryError
	if !errors.As(res.err, &derr) || !errors.Is(derr.Err, ErrUnreachable) {
		t.Fatalf("err = %v, want DiscoveryError wrapping ErrUnreachable", res.err)
	}
	<-r.disconnected
}

func TestServicesModifiedTriggersRediscovery(t *testing.T) {
	c, b, r := newTestCentral(t)
	p := discoverPeripheral(t, b, r, testPeriphID, "sensor")
	connectPeripheral(t, c, b, r, p)
	s, _ := discoverGraph(t, b, r, p, testSvcID, testCharID)

	b.events <- EvtServicesModified{Peripheral: testPeriphID, Services: []UUID{testSvcID}}
	waitCall(t, b, "discoverServices "+testPeriphID.String()+" filter=-1")
	b.events <- EvtServicesDiscovered{Peripheral: testPeriphID, Services: []ServiceInfo{
		{UUID: testSvcID, Primary: true},
	}}

	// The refresh completes through the modified callback, not as a
	// fresh discovery result.
	select {
	case m := <-r.modified:
		if len(m.invalidated) != 1 || m.invalidated[0] != s {
			t.Fatalf("invalidated = %v, want the original wrapper", m.invalidated)
		}
	case <-time.After(waitTime):
		t.Fatal("timed out waiting for services-modified")
	}
	select {
	case res := <-r.services:
		t.Fatalf("internal rediscovery announced as discovery: %v", res.ss)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestServiceRemovalDropsWrappers(t *testing.T) {
	c, b, r := newTestCentral(t)
	p := discoverPeripheral(t, b, r, testPeriphID, "sensor")
	connectPeripheral(t, c, b, r, p)
	_, cc := discoverGraph(t, b, r, p, testSvcID, testCharID)

	// The peripheral dropped the service; re-discovery returns nothing.
	if err := p.DiscoverServices(nil); err != nil {
		t.Fatalf("DiscoverServices: %v", err)
	}
	waitCall(t, b, "discoverServices "+testPeriphID.String()+" filter=-1")
	b.events <- EvtServicesDiscovered{Peripheral: testPeriphID}
	res := <-r.services
	if len(res.ss) != 0 {
		t.Fatalf("discovered %v, want none", res.ss)
	}
	if got := p.Service(testSvcID); got != nil {
		t.Error("removed service still resolvable")
	}
	if err := cc[0].Read(); err != ErrUnreachable {
		t.Errorf("Read() on detached characteristic = %v, want ErrUnreachable", err)
	}
}

func TestDescriptorDiscovery(t *testing.T) {
	c, b, r := newTestCentral(t)
	p := discoverPeripheral(t, b, r, testPeriphID, "sensor")
	connectPeripheral(t, c, b, r, p)
	_, cc := discoverGraph(t, b, r, p, testSvcID, testCharID)
	ch := cc[0]

	if got := ch.Descriptors(); got != nil {
		t.Fatalf("Descriptors() before discovery = %v, want nil", got)
	}
	if err := ch.DiscoverDescriptors(); err != nil {
		t.Fatalf("DiscoverDescriptors: %v", err)
	}
	waitCall(t, b, "discoverDescriptors "+testCharID.String())
	b.events <- EvtDescriptorsDiscovered{Characteristic: testCharID, Descriptors: []DescriptorInfo{
		{UUID: testDescID},
	}}
	res := <-r.descs
	if res.err != nil || len(res.dd) != 1 {
		t.Fatalf("descriptor discovery = (%v, %v), want one descriptor", res.dd, res.err)
	}
	if got := ch.Descriptor(testDescID); got != res.dd[0] {
		t.Error("Descriptor() returned a different wrapper")
	}
}

func TestAutoPolicyDiscoversOnConnect(t *testing.T) {
	c, b, r := newTestCentral(t, WithDiscoveryPolicy(AutoPolicy{
		DiscoverServices:    true,
		DiscoverDescriptors: true,
		Subscribe:           true,
	}))
	p := discoverPeripheral(t, b, r, testPeriphID, "sensor")
	connectPeripheral(t, c, b, r, p)

	// Connect kicks service discovery without an API call.
	waitCall(t, b, "discoverServices "+testPeriphID.String()+" filter=-1")
	b.events <- EvtServicesDiscovered{Peripheral: testPeriphID, Services: []ServiceInfo{
		{UUID: testSvcID, Primary: true},
	}}
	res := <-r.services
	s := res.ss[0]

	if err := s.DiscoverCharacteristics(nil); err != nil {
		t.Fatalf("DiscoverCharacteristics: %v", err)
	}
	waitCall(t, b, "discoverCharacteristics "+testSvcID.String()+" filter=-1")
	b.events <- EvtCharacteristicsDiscovered{Service: testSvcID, Characteristics: []CharacteristicInfo{
		{UUID: testCharID, Properties: CharRead | CharNotify},
	}}
	<-r.chars

	// The policy chases the fresh characteristic with descriptor
	// discovery and a subscription.
	waitCall(t, b, "discoverDescriptors "+testCharID.String())
	waitCall(t, b, "notify "+testCharID.String()+" true")
}
