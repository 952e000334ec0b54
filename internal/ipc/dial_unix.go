//go:build !windows

package ipc

import (
	"context"
	"errors"
	"net"

	"golang.org/x/sys/unix"
)

// dialEndpoint connects to a Unix domain socket. The socket file is checked
// first so a missing node and a permission problem read differently.
func dialEndpoint(ctx context.Context, path string) (net.Conn, error) {
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		switch {
		case errors.Is(err, unix.ENOENT):
			return nil, newError(KindConnection, "connect", path, errors.New("endpoint does not exist"))
		case errors.Is(err, unix.EACCES):
			return nil, newError(KindConnection, "connect", path, errors.New("permission denied on endpoint"))
		default:
			return nil, newError(KindConnection, "connect", path, err)
		}
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, newError(KindConnection, "connect", path, err)
	}
	return conn, nil
}
