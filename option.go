package gatt

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Option configures a Central at construction.
type Option func(*Central) error

// WithLogger sets the structured logger. The default is the logrus
// standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Central) error {
		c.log = log
		return nil
	}
}

// WithEntityFactory sets the factory used to build wrapper entities
// from discovery results.
func WithEntityFactory(f EntityFactory) Option {
	return func(c *Central) error {
		c.factory = f
		return nil
	}
}

// WithDiscoveryPolicy sets the automatic discovery/subscription policy.
// The default does nothing automatically.
func WithDiscoveryPolicy(p DiscoveryPolicy) Option {
	return func(c *Central) error {
		c.policy = p
		return nil
	}
}

// WithScanTimeout makes every scan stop by itself after d unless
// StopScanning is called first. Zero disables the timeout.
func WithScanTimeout(d time.Duration) Option {
	return func(c *Central) error {
		c.scanTimeout = d
		return nil
	}
}
