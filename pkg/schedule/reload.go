package schedule

import (
	"context"
	"os"
	"strconv"

	"github.com/GuillermoLopezEsteve/ClientService/pkg/logging"
	systemd "github.com/coreos/go-systemd/v22/dbus"
	dbus "github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
)

const (
	// CronUnit is the periodic facility's service unit on the target hosts.
	CronUnit = "cron.service"

	systemdSocket = "/run/systemd/private"
)

// Reloader makes a newly installed schedule definition take effect
// without waiting for the facility's own poll interval.
type Reloader interface {
	Reload(ctx context.Context) error
}

// ServiceRestart restarts the periodic facility's systemd unit over the
// systemd private socket.
type ServiceRestart struct {
	Log  logging.Logger
	Unit string

	// Socket overrides the systemd private socket path, for tests.
	Socket string
}

func (r *ServiceRestart) Reload(ctx context.Context) error {
	unit := r.Unit
	if unit == "" {
		unit = CronUnit
	}

	conn, err := r.connect()
	if err != nil {
		return errors.Wrap(err, "unable to connect to systemd")
	}
	defer conn.Close()

	done := make(chan string, 1)
	if _, err := conn.RestartUnitContext(ctx, unit, "replace", done); err != nil {
		return errors.Wrapf(err, "unable to restart %s", unit)
	}
	select {
	case result := <-done:
		if result != "done" {
			return errors.Errorf("restart of %s finished as %q", unit, result)
		}
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "waiting for %s restart", unit)
	}
	if r.Log != nil {
		r.Log.WithField("unit", unit).Debug("restarted")
	}
	return nil
}

func (r *ServiceRestart) connect() (*systemd.Conn, error) {
	socket := r.Socket
	if socket == "" {
		socket = systemdSocket
	}
	dialer := func() (*dbus.Conn, error) {
		conn, err := dbus.Dial("unix:path=" + socket)
		if err != nil {
			return nil, errors.Wrap(err, "unable to connect to systemd socket")
		}
		// Authenticate with the caller's authority.
		methods := []dbus.Auth{dbus.AuthExternal(strconv.Itoa(os.Getuid()))}
		if err := conn.Auth(methods); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "unable to authenticate with systemd")
		}
		return conn, nil
	}
	return systemd.NewConnection(dialer)
}
