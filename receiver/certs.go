package receiver

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// certReloader serves the current server certificate to new handshakes and
// re-loads the pair when the files change on disk. A failed reload keeps
// the previous pair.
type certReloader struct {
	logger   *slog.Logger
	certFile string
	keyFile  string

	mu   sync.RWMutex
	cert *tls.Certificate
}

func newCertReloader(logger *slog.Logger, certFile, keyFile string) (*certReloader, error) {
	r := &certReloader{
		logger:   logger,
		certFile: certFile,
		keyFile:  keyFile,
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *certReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert, nil
}

func (r *certReloader) reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("cannot load key pair %s/%s: %w", r.certFile, r.keyFile, err)
	}

	r.mu.Lock()
	r.cert = &cert
	r.mu.Unlock()

	return nil
}

// watch re-loads the pair whenever either file is written or replaced.
// Certificate rotation tools typically rename a fresh file into place,
// which shows up as Create on the parent directory watch.
func (r *certReloader) watch(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		r.logger.Error("cannot create certificate watcher.", "error", err)
		return
	}
	defer watcher.Close()

	dirs := map[string]struct{}{
		filepath.Dir(r.certFile): {},
		filepath.Dir(r.keyFile):  {},
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			r.logger.Error("cannot watch certificate directory.", "dir", dir, "error", err)
			return
		}
	}

	r.logger.Info("watching tls material for changes.", "cert", r.certFile, "key", r.keyFile)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if event.Name != r.certFile && event.Name != r.keyFile {
				continue
			}
			if err := r.reload(); err != nil {
				r.logger.Error("certificate reload failed. keeping previous pair.", "error", err)
				continue
			}
			r.logger.Info("tls material reloaded.", "file", event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error("certificate watcher error.", "error", err)
		}
	}
}
