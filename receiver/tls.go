package receiver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/thisisjab/sluice/entity"
	"github.com/thisisjab/sluice/fault"
	"github.com/thisisjab/sluice/framer"
)

const (
	defaultReadChunkSize  = 8 * 1024
	defaultReadTimeout    = 5 * time.Minute
	defaultMaxConnections = 100
)

type TLSConfig struct {
	Bind           string        `yaml:"bind"`
	Port           int           `yaml:"port"`
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
	MaxConnections int           `yaml:"max_connections"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WatchCerts     bool          `yaml:"watch_certs"`

	// Framing limits; zero selects the framer defaults.
	MaxFrameSize  int `yaml:"max_frame_size"`
	MaxBufferSize int `yaml:"max_buffer_size"`
}

// TLSReceiver accepts TLS stream sessions carrying octet-counted syslog
// frames. Every session owns its framer; frames are delivered in send
// order within a session.
type TLSReceiver struct {
	cfg    TLSConfig
	logger *slog.Logger
	active atomic.Int64

	mu sync.Mutex
	ln net.Listener
}

func NewTLSReceiver(logger *slog.Logger, cfg TLSConfig) *TLSReceiver {
	if cfg.Bind == "" {
		cfg.Bind = "0.0.0.0"
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultMaxConnections
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	return &TLSReceiver{cfg: cfg, logger: logger}
}

func (r *TLSReceiver) Name() string {
	return "tls"
}

// Addr returns the bound address, or nil before Listen has bound.
func (r *TLSReceiver) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ln == nil {
		return nil
	}
	return r.ln.Addr()
}

// Listen loads the TLS material, binds the stream socket and accepts
// sessions until ctx is cancelled. Missing or unreadable certificate
// material and bind failures are fatal and returned to the supervisor.
func (r *TLSReceiver) Listen(ctx context.Context, deliver func(entity.Envelope)) error {
	reloader, err := newCertReloader(r.logger, r.cfg.CertFile, r.cfg.KeyFile)
	if err != nil {
		return fault.New(fault.TLSInitCode, "cannot load tls material").WithOriginal(err)
	}
	if r.cfg.WatchCerts {
		go reloader.watch(ctx)
	}

	tlsCfg := &tls.Config{
		GetCertificate: reloader.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}

	addr := net.JoinHostPort(r.cfg.Bind, strconv.Itoa(r.cfg.Port))
	ln, err := tls.Listen("tcp", addr, tlsCfg)
	if err != nil {
		return fault.New(fault.BindFailedCode,
			fmt.Sprintf("cannot bind tls socket on %s", addr)).WithOriginal(err)
	}

	r.mu.Lock()
	r.ln = ln
	r.mu.Unlock()

	r.logger.Info("tls receiver listening.", "addr", ln.Addr().String(), "max_connections", r.cfg.MaxConnections)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			r.logger.Error("accept failed.", "error", err)
			continue
		}

		if r.active.Load() >= int64(r.cfg.MaxConnections) {
			r.logger.Warn("connection limit reached. closing new connection.",
				"peer", conn.RemoteAddr().String(), "limit", r.cfg.MaxConnections)
			conn.Close()
			continue
		}

		r.active.Add(1)
		wg.Go(func() {
			defer r.active.Add(-1)
			r.handleConnection(ctx, conn, deliver)
		})
	}

	wg.Wait()
	return nil
}

// handleConnection runs one session: read chunks, feed the framer, hand
// every complete frame to the pipeline in order. Framer faults close the
// session; timeouts and peer closes end it quietly.
func (r *TLSReceiver) handleConnection(ctx context.Context, conn net.Conn, deliver func(entity.Envelope)) {
	peer := conn.RemoteAddr().String()
	logger := r.logger.With("session", uuid.NewString(), "peer", peer)
	sourceIP := hostOnly(peer)

	logger.Info("connection established.")
	defer logger.Info("connection closed.")
	defer conn.Close()

	// Wake a blocked read when shutdown is requested.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	fr := framer.New(r.cfg.MaxFrameSize, r.cfg.MaxBufferSize)
	buf := make([]byte, defaultReadChunkSize)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(r.cfg.ReadTimeout)); err != nil {
			logger.Error("cannot set read deadline.", "error", err)
			return
		}

		n, err := conn.Read(buf)
		if n > 0 {
			frames, ferr := fr.Feed(buf[:n])
			for _, frame := range frames {
				deliver(entity.Envelope{Raw: frame, SourceIP: sourceIP})
			}
			if ferr != nil {
				logger.Error("framing failed. closing connection.",
					"reason", fault.CodeOf(ferr), "error", ferr)
				return
			}
		}

		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return // orderly close
			case ctx.Err() != nil:
				return
			default:
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					logger.Debug("read timeout. closing idle connection.")
					return
				}
				logger.Error("read failed.", "error", err)
				return
			}
		}
	}
}
