//go:build windows

package ipc

import (
	"context"
	"errors"
	"net"
	"os"

	"github.com/Microsoft/go-winio"
)

// dialEndpoint connects to a named pipe.
func dialEndpoint(ctx context.Context, path string) (net.Conn, error) {
	conn, err := winio.DialPipeContext(ctx, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newError(KindConnection, "connect", path, errors.New("endpoint does not exist"))
		}
		return nil, newError(KindConnection, "connect", path, err)
	}
	return conn, nil
}
