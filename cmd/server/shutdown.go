package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/log"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

// drain waits d so load balancers see the failing readiness probe and
// in-flight requests finish. A second signal cuts it short.
func drain(L log.Logger, d time.Duration) {
	if d <= 0 {
		return
	}
	ctx := context.Background()
	L.Info(ctx, "draining before shutdown", "drain", d.String())

	force := make(chan os.Signal, 1)
	signal.Notify(force, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(force)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		L.Info(ctx, "drain period complete")
	case <-force:
		L.Warn(ctx, "second signal received, skipping drain")
	}
}

// sdNotify sends state to systemd when running as a Type=notify unit.
func sdNotify(state string) error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return xerrors.New("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return xerrors.Wrap(err, "systemd notify: dial")
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(state)); err != nil {
		return xerrors.Wrapf(err, "systemd notify: write %s", state)
	}
	return nil
}
