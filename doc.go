// Package gatt is a central-role abstraction layer over a platform
// Bluetooth Low Energy stack.
//
// Gatt (Generic Attribute Profile) is the BLE data model of services
// containing characteristics containing descriptors. This package
// wraps a platform radio backend behind a narrow capability interface
// and exposes Central, Peripheral, Service, Characteristic and
// Descriptor wrapper objects with callback-based results.
//
// USAGE
//
// Construct a Central over a Backend, register observers, then Init:
//
//	c, err := gatt.NewCentral(backend, gatt.WithScanTimeout(30*time.Second))
//	if err != nil {
//		log.Fatal(err)
//	}
//	c.Handle(
//		gatt.PeripheralDiscovered(onDiscovered),
//		gatt.PeripheralConnected(onConnected),
//		gatt.ServicesDiscovered(onServices),
//	)
//	c.Init(func(c *gatt.Central, s gatt.State) {
//		if s == gatt.StatePoweredOn {
//			c.Scan(nil, false)
//		}
//	})
//
// Every discovery, read, write and connect call returns immediately;
// results arrive through the registered callbacks. The core processes
// all backend events for one Central on a single goroutine, and
// delivers callbacks on a second one in FIFO order, so callbacks may
// call back into the API freely.
//
// The linux subpackage provides a BlueZ D-Bus backend. Any other
// platform binding can be plugged in by implementing the Backend
// interface.
package gatt
