package config

import (
	"bufio"
	"net"
	"strings"
	"testing"
)

// startEchoBridge runs a TCP listener that answers every CR-terminated
// line with "re:<line>\n" and returns its address.
func startEchoBridge(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				r := bufio.NewReader(c)
				for {
					line, err := r.ReadString('\r')
					if err != nil {
						return
					}
					if _, err := c.Write([]byte("re:" + strings.TrimSpace(line) + "\n")); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	return ln.Addr().String()
}
