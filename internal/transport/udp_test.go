package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLoopback(t *testing.T) *UDP {
	t.Helper()
	u, err := Listen(context.Background(), Config{Addr: "127.0.0.1:0"}, testLogger())
	if err != nil {
		t.Fatalf("Listen error: %v", err)
	}
	t.Cleanup(func() { u.Close() })
	return u
}

func TestSendReceive(t *testing.T) {
	u := newLoopback(t)
	local := u.LocalAddr()

	if err := u.Send([]byte("hello"), local.IP, local.Port); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	got, err := u.Receive(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("Receive error: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Receive = %q, want hello", got)
	}
}

func TestReceiveCopiesBuffer(t *testing.T) {
	u := newLoopback(t)
	local := u.LocalAddr()

	u.Send([]byte("first"), local.IP, local.Port)
	u.Send([]byte("second"), local.IP, local.Port)

	a, err := u.Receive(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("Receive error: %v", err)
	}
	if _, err := u.Receive(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("Receive error: %v", err)
	}
	if string(a) != "first" {
		t.Errorf("first datagram overwritten: %q", a)
	}
}

func TestReceiveTimeout(t *testing.T) {
	u := newLoopback(t)

	start := time.Now()
	_, err := u.Receive(context.Background(), 50*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Receive error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Receive returned after %v, before the timeout", elapsed)
	}
}

func TestReceiveCancelled(t *testing.T) {
	u := newLoopback(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := u.Receive(ctx, 10*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Receive error = %v, want context.Canceled", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation did not interrupt the read")
	}
}

func TestClose(t *testing.T) {
	u := newLoopback(t)
	if err := u.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := u.Close(); err != nil {
		t.Errorf("second Close error: %v", err)
	}
	if err := u.Send([]byte("x"), net.IPv4(127, 0, 0, 1), 9); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	if _, err := u.Receive(context.Background(), time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive after Close = %v, want ErrClosed", err)
	}
}

func TestListenUnknownInterface(t *testing.T) {
	_, err := Listen(context.Background(), Config{Interface: "does-not-exist0", Addr: "127.0.0.1:0"}, testLogger())
	if err == nil {
		t.Fatal("expected error for unknown interface")
	}
}
