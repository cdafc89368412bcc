// Package systemd speaks the sd_notify protocol so the daemon can run as a
// Type=notify unit with a watchdog. Outside systemd every call is a no-op.
package systemd

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends state updates to the service manager.
type Notifier struct {
	// send is daemon.SdNotify; replaced in tests.
	send func(unsetEnv bool, state string) (bool, error)
	// watchdog is daemon.SdWatchdogEnabled.
	watchdog func(unsetEnv bool) (time.Duration, error)
}

func New() *Notifier {
	return &Notifier{send: daemon.SdNotify, watchdog: daemon.SdWatchdogEnabled}
}

func (n *Notifier) notify(state string) (bool, error) {
	ok, err := n.send(false, state)
	if err != nil {
		return false, fmt.Errorf("sd_notify %q: %w", state, err)
	}
	return ok, nil
}

// Ready reports startup complete. It returns false when not under systemd.
func (n *Notifier) Ready() (bool, error) { return n.notify(daemon.SdNotifyReady) }

func (n *Notifier) Stopping() (bool, error) { return n.notify(daemon.SdNotifyStopping) }

func (n *Notifier) Reloading() (bool, error) { return n.notify(daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(msg string) (bool, error) { return n.notify("STATUS=" + msg) }

// Watchdog pings the service manager at half the configured interval until
// ctx is done. healthy gates each ping; a nil healthy always pings. It
// returns immediately when the watchdog is not enabled.
func (n *Notifier) Watchdog(ctx context.Context, healthy func() bool) error {
	interval, err := n.watchdog(false)
	if err != nil {
		return fmt.Errorf("sd watchdog: %w", err)
	}
	if interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil && !healthy() {
				continue
			}
			if _, err := n.notify(daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
