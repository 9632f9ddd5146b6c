package engine

import (
	"context"

	"github.com/thisisjab/sluice/entity"
)

// Receiver is the contract for transport frontends. Listen blocks until ctx
// is cancelled, delivering each decoded wire line to the pipeline. A
// returned error is fatal for the whole process (bind or TLS-material
// failure); connection-scoped errors are absorbed inside the receiver.
type Receiver interface {
	Name() string
	Listen(ctx context.Context, deliver func(entity.Envelope)) error
}
