package receiver

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/thisisjab/sluice/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// waitForAddr polls until the receiver has bound.
func waitForAddr(t *testing.T, addr func() net.Addr) net.Addr {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if a := addr(); a != nil {
			return a
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("receiver did not bind in time")
	return nil
}

func recvEnvelope(t *testing.T, ch <-chan entity.Envelope) entity.Envelope {
	t.Helper()

	select {
	case env := <-ch:
		return env
	case <-time.After(5 * time.Second):
		t.Fatal("no envelope delivered in time")
		return entity.Envelope{}
	}
}

func TestUDPReceiverDeliversDatagrams(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewUDPReceiver(testLogger(), UDPConfig{Bind: "127.0.0.1", Port: 0, Workers: 2})

	envelopes := make(chan entity.Envelope, 16)
	done := make(chan error, 1)
	go func() {
		done <- r.Listen(ctx, func(env entity.Envelope) { envelopes <- env })
	}()

	addr := waitForAddr(t, r.Addr)

	conn, err := net.Dial("udp", addr.String())
	if err != nil {
		t.Fatalf("cannot dial: %v", err)
	}
	defer conn.Close()

	payload := "<13>Oct 31 12:00:00 server01 Test message"
	if _, err := conn.Write([]byte(payload)); err != nil {
		t.Fatalf("cannot send datagram: %v", err)
	}

	env := recvEnvelope(t, envelopes)
	if env.Raw != payload {
		t.Fatalf("delivered raw = %q, want %q", env.Raw, payload)
	}
	if env.SourceIP != "127.0.0.1" {
		t.Fatalf("delivered source = %q, want 127.0.0.1", env.SourceIP)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Listen() returned %v after cancel", err)
	}
}

func TestUDPReceiverOneDatagramOneMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewUDPReceiver(testLogger(), UDPConfig{Bind: "127.0.0.1", Port: 0, Workers: 1})

	envelopes := make(chan entity.Envelope, 16)
	go func() { r.Listen(ctx, func(env entity.Envelope) { envelopes <- env }) }() //nolint:errcheck

	addr := waitForAddr(t, r.Addr)
	conn, err := net.Dial("udp", addr.String())
	if err != nil {
		t.Fatalf("cannot dial: %v", err)
	}
	defer conn.Close()

	// Newlines inside a datagram are content, not framing.
	payload := "<13>line one\nstill the same message"
	if _, err := conn.Write([]byte(payload)); err != nil {
		t.Fatalf("cannot send datagram: %v", err)
	}

	env := recvEnvelope(t, envelopes)
	if env.Raw != payload {
		t.Fatalf("delivered raw = %q, want the whole datagram", env.Raw)
	}

	select {
	case extra := <-envelopes:
		t.Fatalf("unexpected extra envelope: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUDPReceiverBindFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Occupy a port, then ask the receiver to bind the same one.
	taken, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("cannot reserve port: %v", err)
	}
	defer taken.Close()

	port := taken.LocalAddr().(*net.UDPAddr).Port
	r := NewUDPReceiver(testLogger(), UDPConfig{Bind: "127.0.0.1", Port: port})

	if err := r.Listen(ctx, func(entity.Envelope) {}); err == nil {
		t.Fatal("Listen() expected a bind error")
	}
}
