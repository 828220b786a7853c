package link

import (
	"context"
	"fmt"
	"net"
	"time"
)

const dialTimeout = 3 * time.Second

// DialTCP connects to a TCP serial bridge at addr (host:port) and wraps the
// connection in a [LineLink]. Refused connections are retried with backoff.
func DialTCP(ctx context.Context, addr string, linkOpts ...Option) (*LineLink, error) {
	dialer := net.Dialer{Timeout: dialTimeout}

	var conn net.Conn
	err := retryOpen(ctx, func() error {
		c, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	return NewLineLink(conn, linkOpts...), nil
}
