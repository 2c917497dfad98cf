package filtmgr

import (
	"sync"

	"github.com/rishabg/bloomd/internal/bloomfilter"
)

// handle wraps one underlying filter so many readers or one writer
// can share it safely while a separate drop/unmap call mutates its
// lifecycle metadata.
//
// rwlock protects only filter. isActive and refCount are owned by
// the manager's registry mutex instead, so that a slow keyed
// operation never blocks an unrelated lookup or return.
type handle struct {
	filter *bloomfilter.Filter
	rwlock sync.RWMutex

	isActive bool
	refCount int32
}

func newHandle(f *bloomfilter.Filter) *handle {
	return &handle{
		filter:   f,
		isActive: true,
		refCount: 1,
	}
}
