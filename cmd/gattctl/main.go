// gattctl is a small command line tool for poking at nearby BLE
// peripherals through the BlueZ backend: scan for advertisements,
// explore a peripheral's GATT database, or read one characteristic.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/corvuslabs/gatt"
	"github.com/corvuslabs/gatt/linux"
)

func main() {
	app := cli.NewApp()
	app.Name = "gattctl"
	app.Usage = "explore BLE peripherals from the command line"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "YAML config file",
		},
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "debug logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "scan",
			Usage: "scan for advertising peripherals",
			Flags: []cli.Flag{
				cli.DurationFlag{
					Name:  "duration, d",
					Usage: "how long to scan",
					Value: 10 * time.Second,
				},
				cli.StringSliceFlag{
					Name:  "service, s",
					Usage: "only report peripherals advertising this service UUID",
				},
			},
			Action: cmdScan,
		},
		{
			Name:      "explore",
			Usage:     "connect to a peripheral and dump its GATT database",
			ArgsUsage: "<peripheral name>",
			Action:    cmdExplore,
		},
		{
			Name:      "read",
			Usage:     "connect and read one characteristic",
			ArgsUsage: "<peripheral name> <characteristic uuid>",
			Action:    cmdRead,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCentral(ctx *cli.Context, extra ...gatt.Option) (*gatt.Central, error) {
	log := logrus.New()
	if ctx.GlobalBool("verbose") {
		log.SetLevel(logrus.DebugLevel)
	}
	opts := []gatt.Option{gatt.WithLogger(log)}
	if path := ctx.GlobalString("config"); path != "" {
		cfg, err := gatt.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		fromFile, err := cfg.Options()
		if err != nil {
			return nil, err
		}
		opts = append(opts, fromFile...)
	}
	opts = append(opts, extra...)

	backend, err := linux.NewBackend(log)
	if err != nil {
		return nil, err
	}
	return gatt.NewCentral(backend, opts...)
}

// parseFilter turns --service flags into a scan filter. No flags means
// a nil filter, which matches everything.
func parseFilter(ss []string) ([]gatt.UUID, error) {
	if len(ss) == 0 {
		return nil, nil
	}
	filter := make([]gatt.UUID, 0, len(ss))
	for _, s := range ss {
		u, err := gatt.ParseUUID(s)
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", s, err)
		}
		filter = append(filter, u)
	}
	return filter, nil
}

func cmdScan(ctx *cli.Context) error {
	filter, err := parseFilter(ctx.StringSlice("service"))
	if err != nil {
		return err
	}
	c, err := newCentral(ctx, gatt.WithScanTimeout(ctx.Duration("duration")))
	if err != nil {
		return err
	}
	defer c.Close()

	done := make(chan struct{})
	c.Handle(
		gatt.PeripheralDiscovered(func(p *gatt.Peripheral, a *gatt.Advertisement, rssi int) {
			fmt.Printf("%s  rssi=%-4d  %s\n", p.ID(), rssi, p.Name())
		}),
		gatt.ScanStopped(func(c *gatt.Central, err error) {
			close(done)
		}),
	)
	c.Init(func(c *gatt.Central, s gatt.State) {
		if s == gatt.StatePoweredOn {
			c.Scan(filter, false)
		}
	})
	<-done
	return nil
}

// connectByName scans until a peripheral with the given name shows up,
// then connects to it. Discovery handlers must already be registered.
func connectByName(c *gatt.Central, name string) (*gatt.Peripheral, error) {
	found := make(chan *gatt.Peripheral, 1)
	failed := make(chan error, 1)
	c.Handle(
		gatt.PeripheralDiscovered(func(p *gatt.Peripheral, a *gatt.Advertisement, rssi int) {
			if p.Name() != name {
				return
			}
			c.StopScanning()
			c.Connect(p)
		}),
		gatt.PeripheralConnected(func(p *gatt.Peripheral) {
			found <- p
		}),
		gatt.PeripheralConnectFailed(func(p *gatt.Peripheral, err error) {
			failed <- err
		}),
	)
	c.Init(func(c *gatt.Central, s gatt.State) {
		if s == gatt.StatePoweredOn {
			c.Scan(nil, false)
		}
	})
	select {
	case p := <-found:
		return p, nil
	case err := <-failed:
		return nil, err
	case <-time.After(time.Minute):
		return nil, fmt.Errorf("peripheral %q not found", name)
	}
}

func cmdExplore(ctx *cli.Context) error {
	name := ctx.Args().First()
	if name == "" {
		return cli.NewExitError("usage: gattctl explore <peripheral name>", 2)
	}
	c, err := newCentral(ctx, gatt.WithDiscoveryPolicy(gatt.AutoPolicy{
		DiscoverServices: true,
	}))
	if err != nil {
		return err
	}
	defer c.Close()

	done := make(chan error, 1)
	remaining := make(chan int, 1)
	c.Handle(
		gatt.ServicesDiscovered(func(p *gatt.Peripheral, ss []*gatt.Service, err error) {
			if err != nil {
				done <- err
				return
			}
			remaining <- len(ss)
			if len(ss) == 0 {
				done <- nil
				return
			}
			for _, s := range ss {
				if err := s.DiscoverCharacteristics(nil); err != nil {
					done <- err
					return
				}
			}
		}),
		gatt.CharacteristicsDiscovered(func(p *gatt.Peripheral, s *gatt.Service, cc []*gatt.Characteristic, err error) {
			if err != nil {
				done <- err
				return
			}
			fmt.Printf("service %s (primary=%v)\n", s.UUID(), s.Primary())
			for _, ch := range cc {
				fmt.Printf("  characteristic %s  props=0x%02x\n", ch.UUID(), uint8(ch.Properties()))
			}
			if n := <-remaining; n > 1 {
				remaining <- n - 1
			} else {
				done <- nil
			}
		}),
		gatt.PeripheralDisconnected(func(p *gatt.Peripheral, err error) {
			done <- err
		}),
	)
	p, err := connectByName(c, name)
	if err != nil {
		return err
	}
	fmt.Printf("connected to %s (%s)\n", p.Name(), p.ID())
	err = <-done
	c.CancelConnection(p)
	return err
}

func cmdRead(ctx *cli.Context) error {
	name := ctx.Args().Get(0)
	charID, parseErr := gatt.ParseUUID(ctx.Args().Get(1))
	if name == "" || parseErr != nil {
		return cli.NewExitError("usage: gattctl read <peripheral name> <characteristic uuid>", 2)
	}
	c, err := newCentral(ctx, gatt.WithDiscoveryPolicy(gatt.AutoPolicy{DiscoverServices: true}))
	if err != nil {
		return err
	}
	defer c.Close()

	done := make(chan error, 1)
	c.Handle(
		gatt.ServicesDiscovered(func(p *gatt.Peripheral, ss []*gatt.Service, err error) {
			if err != nil {
				done <- err
				return
			}
			for _, s := range ss {
				if err := s.DiscoverCharacteristics(nil); err != nil {
					done <- err
					return
				}
			}
		}),
		gatt.CharacteristicsDiscovered(func(p *gatt.Peripheral, s *gatt.Service, cc []*gatt.Characteristic, err error) {
			if err != nil {
				done <- err
				return
			}
			for _, ch := range cc {
				if ch.UUID().Equal(charID) {
					if err := ch.Read(); err != nil {
						done <- err
					}
					return
				}
			}
		}),
		gatt.CharacteristicValueUpdated(func(p *gatt.Peripheral, ch *gatt.Characteristic, err error) {
			if err == nil {
				fmt.Printf("%x\n", ch.Value())
			}
			done <- err
		}),
		gatt.PeripheralDisconnected(func(p *gatt.Peripheral, err error) {
			done <- err
		}),
	)
	p, err := connectByName(c, name)
	if err != nil {
		return err
	}
	err = <-done
	c.CancelConnection(p)
	return err
}
