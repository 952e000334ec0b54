package ipc

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newError(KindTimeout, "read", "/tmp/geth.ipc", errors.New("slow")))
	if !errors.Is(err, ErrTimeout) {
		t.Fatal("expected timeout sentinel to match")
	}
	if errors.Is(err, ErrConnection) {
		t.Fatal("connection sentinel should not match a timeout")
	}
	if KindOf(err) != KindTimeout {
		t.Fatalf("unexpected kind: %s", KindOf(err))
	}
	if KindOf(errors.New("plain")) != 0 {
		t.Fatal("expected zero kind for foreign errors")
	}
	want := "read /tmp/geth.ipc: timeout error: slow"
	if got := errors.Unwrap(err).Error(); got != want {
		t.Fatalf("unexpected message: %q want %q", got, want)
	}
}

func TestRPCErrorMessage(t *testing.T) {
	err := &RPCError{Code: -32000, Message: "execution reverted", Data: []byte(`"0x08c379a0"`)}
	want := `rpc error -32000: execution reverted (data: "0x08c379a0")`
	if err.Error() != want {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}
