package engine

import "github.com/thisisjab/sluice/entity"

// Filter is an optional per-record hook applied between parsing and
// deduplication. keep=false drops the record. A non-nil error means the
// hook misbehaved; the record passes through unchanged.
type Filter interface {
	Filter(msg entity.Message) (entity.Message, bool, error)
}
