// Package bloomfilter implements the underlying probabilistic
// set-membership structure the filter manager treats as an opaque
// collaborator: Init, Contains, Add, Flush, Close, Destroy.
package bloomfilter

import (
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// FolderPrefix is the fixed prefix every on-disk filter directory
// carries.
const FolderPrefix = "bloomd."

const bitsetFileName = "data"

// Params is the parameter set a filter is constructed with.
type Params struct {
	Capacity          uint
	FalsePositiveRate float64
	InMemory          bool
}

// Filter is one probabilistic set. It owns its own mutex because the
// filter manager's reader/writer lock only coordinates concurrent
// callers against each other; Filter additionally protects itself
// because several readers holding the manager's read lock may hit the
// re-open-after-unmap path at the same time.
type Filter struct {
	mu sync.RWMutex

	dir      string
	inMemory bool

	bits     []byte
	numBits  uint64
	hashFns  int

	file   *os.File
	closed bool
}

// Init opens or creates the filter named name under dataDir. An
// in-memory filter touches no directory and always starts empty. For
// an on-disk filter, when createIfAbsent is false and no directory
// exists, Init fails; discovery always passes createIfAbsent=false for folders it
// already found, and Create passes true for brand-new filters.
func Init(p Params, dataDir, name string, createIfAbsent bool) (*Filter, error) {
	numBits, hashFns := optimalParams(p.Capacity, p.FalsePositiveRate)
	dir := filepath.Join(dataDir, FolderPrefix+name)

	f := &Filter{
		dir:      dir,
		inMemory: p.InMemory,
		numBits:  numBits,
		hashFns:  hashFns,
	}

	if p.InMemory {
		f.bits = make([]byte, byteLen(numBits))
		return f, nil
	}

	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		if err := f.openExisting(); err != nil {
			return nil, fmt.Errorf("open existing filter %q: %w", name, err)
		}
		return f, nil
	case os.IsNotExist(err):
		if !createIfAbsent {
			return nil, fmt.Errorf("filter %q has no on-disk directory", name)
		}
		if err := f.createNew(); err != nil {
			return nil, fmt.Errorf("create filter %q: %w", name, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("stat filter dir %q: %w", dir, err)
	}
}

func (f *Filter) createNew() error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return err
	}
	f.bits = make([]byte, byteLen(f.numBits))
	file, err := os.OpenFile(filepath.Join(f.dir, bitsetFileName), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(f.bits); err != nil {
		file.Close()
		return err
	}
	f.file = file
	return nil
}

func (f *Filter) openExisting() error {
	path := filepath.Join(f.dir, bitsetFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	want := byteLen(f.numBits)
	if len(data) != want {
		// The stored bitset predates the current parameter set; keep
		// whatever is on disk rather than silently resizing it away.
		f.numBits = uint64(len(data)) * 8
	}
	f.bits = data
	file, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	f.file = file
	return nil
}

// reopenLocked re-materializes bits/file after a Close, so access
// resumes transparently. An in-memory filter has nothing to reload and
// resumes with an empty bitset. Caller holds f.mu for writing.
func (f *Filter) reopenLocked() error {
	if !f.closed {
		return nil
	}
	if f.inMemory {
		f.bits = make([]byte, byteLen(f.numBits))
		f.closed = false
		return nil
	}
	if err := f.openExisting(); err != nil {
		return fmt.Errorf("reopen filter: %w", err)
	}
	f.closed = false
	return nil
}

// ensureOpen reopens the backing bitset if a prior Close left it shut.
// Many concurrent readers may observe closed at once; the double
// check under f.mu serializes them onto a single reopen.
func (f *Filter) ensureOpen() error {
	f.mu.RLock()
	closed := f.closed
	f.mu.RUnlock()
	if !closed {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reopenLocked()
}

// Contains reports whether key may be present. False positives are
// possible; false negatives are not.
func (f *Filter) Contains(key []byte) (bool, error) {
	if err := f.ensureOpen(); err != nil {
		return false, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, idx := range f.bitIndices(key) {
		if !f.bitSet(idx) {
			return false, nil
		}
	}
	return true, nil
}

// Add sets key's bits and reports whether any bit actually flipped
// from 0 to 1.
func (f *Filter) Add(key []byte) (bool, error) {
	if err := f.ensureOpen(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	newlyAdded := false
	for _, idx := range f.bitIndices(key) {
		if !f.bitSet(idx) {
			newlyAdded = true
			f.setBit(idx)
		}
	}
	return newlyAdded, nil
}

// Flush persists the in-memory bitset to disk. A no-op for in-memory
// filters.
func (f *Filter) Flush() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.inMemory || f.file == nil {
		return nil
	}
	if _, err := f.file.WriteAt(f.bits, 0); err != nil {
		return fmt.Errorf("flush filter: %w", err)
	}
	return f.file.Sync()
}

// Close releases in-memory buffers and the open file handle but
// leaves the directory on disk and the filter registered.
func (f *Filter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	if f.file != nil {
		if _, err := f.file.WriteAt(f.bits, 0); err != nil {
			f.file.Close()
			return fmt.Errorf("flush on close: %w", err)
		}
		if err := f.file.Close(); err != nil {
			return fmt.Errorf("close filter file: %w", err)
		}
		f.file = nil
	}
	f.bits = nil
	f.closed = true
	return nil
}

// Destroy releases every in-memory resource the filter holds. It
// deliberately does not touch the on-disk directory: the manager
// requests destruction on the last reference release (e.g. after
// Drop), but disk removal is a separate, explicit operation this
// contract does not define — callers who want the bytes gone invoke
// Purge themselves.
func (f *Filter) Destroy() error {
	return f.Close()
}

// Purge removes the filter's on-disk directory entirely. Unlike
// Destroy, this is irreversible and is never called automatically by
// the filter manager.
func (f *Filter) Purge() error {
	if err := f.Close(); err != nil {
		return err
	}
	if f.inMemory {
		return nil
	}
	if err := os.RemoveAll(f.dir); err != nil {
		return fmt.Errorf("purge filter: %w", err)
	}
	return nil
}

func (f *Filter) bitIndices(key []byte) []uint64 {
	indices := make([]uint64, f.hashFns)
	h := fnv.New64a()
	for i := 0; i < f.hashFns; i++ {
		h.Reset()
		h.Write(key)
		h.Write([]byte{byte(i)})
		indices[i] = h.Sum64() % f.numBits
	}
	return indices
}

func (f *Filter) bitSet(idx uint64) bool {
	return f.bits[idx/8]&(1<<(idx%8)) != 0
}

func (f *Filter) setBit(idx uint64) {
	f.bits[idx/8] |= 1 << (idx % 8)
}

func byteLen(numBits uint64) int {
	return int((numBits + 7) / 8)
}

// optimalParams computes bitset size and hash function count from
// expected capacity and desired false-positive rate using the
// standard formulas:
//
//	m = -(n * ln(p)) / (ln(2))^2
//	k = (m / n) * ln(2)
func optimalParams(capacity uint, fpRate float64) (numBits uint64, hashFns int) {
	n := float64(capacity)
	if n < 1 {
		n = 1
	}
	p := fpRate
	if p <= 0 || p >= 1 {
		p = 0.01
	}

	m := -(n * math.Log(p)) / (math.Ln2 * math.Ln2)
	numBits = uint64(math.Ceil(m))
	if numBits < 8 {
		numBits = 8
	}

	k := int(math.Round((float64(numBits) / n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}
	return numBits, k
}
