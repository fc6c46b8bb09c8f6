package ready

import (
	"context"
	"net"
)

// TCP checks readiness by dialing a TCP connection.
type TCP struct{}

func (TCP) Check(ctx context.Context, addr string) error {
	d := net.Dialer{Timeout: probeTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}
