// Package receiver implements the two transport frontends. Both deliver
// decoded wire lines to the engine through the same sink contract.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/thisisjab/sluice/entity"
	"github.com/thisisjab/sluice/fault"
)

// MaxDatagramSize is the largest datagram we read. Anything larger was
// already truncated by the kernel and is processed as received.
const MaxDatagramSize = 64 * 1024

const defaultUDPWorkers = 4

type UDPConfig struct {
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
	Workers int    `yaml:"workers"`
}

// UDPReceiver reads datagrams and hands each one to the pipeline as exactly
// one message. Reads may run on several workers; datagrams carry no
// ordering guarantee anyway.
type UDPReceiver struct {
	cfg    UDPConfig
	logger *slog.Logger

	mu   sync.Mutex
	conn net.PacketConn
}

func NewUDPReceiver(logger *slog.Logger, cfg UDPConfig) *UDPReceiver {
	if cfg.Bind == "" {
		cfg.Bind = "0.0.0.0"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultUDPWorkers
	}
	return &UDPReceiver{cfg: cfg, logger: logger}
}

func (r *UDPReceiver) Name() string {
	return "udp"
}

// Addr returns the bound address, or nil before Listen has bound.
func (r *UDPReceiver) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Listen binds the datagram socket and reads until ctx is cancelled.
// A bind failure is fatal and returned to the supervisor.
func (r *UDPReceiver) Listen(ctx context.Context, deliver func(entity.Envelope)) error {
	addr := net.JoinHostPort(r.cfg.Bind, strconv.Itoa(r.cfg.Port))

	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fault.New(fault.BindFailedCode,
			fmt.Sprintf("cannot bind udp socket on %s", addr)).WithOriginal(err)
	}

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	r.logger.Info("udp receiver listening.", "addr", conn.LocalAddr().String(), "workers", r.cfg.Workers)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	var wg sync.WaitGroup
	for range r.cfg.Workers {
		wg.Go(func() {
			r.readLoop(ctx, conn, deliver)
		})
	}
	wg.Wait()

	return nil
}

func (r *UDPReceiver) readLoop(ctx context.Context, conn net.PacketConn, deliver func(entity.Envelope)) {
	buf := make([]byte, MaxDatagramSize)

	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			r.logger.Error("udp read failed.", "error", err)
			continue
		}

		deliver(entity.Envelope{
			Raw:      strings.ToValidUTF8(string(buf[:n]), "�"),
			SourceIP: hostOnly(peer.String()),
		})
	}
}

// hostOnly strips the port from a peer address.
func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
