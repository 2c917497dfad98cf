package filtmgr

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rishabg/bloomd/internal/bloomderrors"
)

func TestConcurrentCreateExactlyOneWinner(t *testing.T) {
	mgr, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	const n = 32
	var wg sync.WaitGroup
	var successes atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mgr.Create("contended", nil); err == nil {
				successes.Add(1)
			} else if !errors.Is(err, bloomderrors.ErrAlreadyExists) {
				t.Errorf("unexpected Create error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := successes.Load(); got != 1 {
		t.Fatalf("successful creates = %d, want 1", got)
	}
	if got := mgr.NumFilters(); got != 1 {
		t.Fatalf("NumFilters = %d, want 1", got)
	}
}

func TestConcurrentSetAndDrop(t *testing.T) {
	mgr, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := mgr.Create("x", nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	batch := make([][]byte, 1000)
	for i := range batch {
		batch[i] = []byte(fmt.Sprintf("k%d", i))
	}

	var wg sync.WaitGroup
	var setResults []bool
	var setErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		setResults, setErr = mgr.Set("x", batch)
	}()

	var dropErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		dropErr = mgr.Drop("x")
	}()

	wg.Wait()

	if setErr != nil {
		t.Fatalf("Set failed: %v", setErr)
	}
	for i, v := range setResults {
		if !v {
			t.Fatalf("Set result[%d] = false, want true (filter was empty)", i)
		}
	}
	if dropErr != nil {
		t.Fatalf("Drop failed: %v", dropErr)
	}

	if _, err := mgr.Check("x", batch[:1]); !errors.Is(err, bloomderrors.ErrNoSuchFilter) {
		t.Fatalf("Check after drop = %v, want ErrNoSuchFilter", err)
	}
}

func TestHighContentionReadersWithPeriodicFlush(t *testing.T) {
	mgr, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := mgr.Create("z", nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	const (
		readers     = 16
		batchesEach = 200
		batchSize   = 50
	)

	var wg sync.WaitGroup
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			batch := make([][]byte, batchSize)
			for i := range batch {
				batch[i] = []byte(fmt.Sprintf("reader%d-key%d", id, i))
			}
			for b := 0; b < batchesEach; b++ {
				got, err := mgr.Check("z", batch)
				if err != nil {
					t.Errorf("Check failed: %v", err)
					return
				}
				if len(got) != len(batch) {
					t.Errorf("Check returned %d results, want %d", len(got), len(batch))
					return
				}
			}
		}(r)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			if err := mgr.Flush("z"); err != nil {
				t.Errorf("Flush failed: %v", err)
				return
			}
		}
	}()

	wg.Wait()
}

func TestRefCountNeverNegativeUnderMixedLoad(t *testing.T) {
	mgr, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := mgr.Create("mix", nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = mgr.Check("mix", keys("k"))
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = mgr.Drop("mix")
	}()
	wg.Wait()

	// Whatever the outcome, a second Drop must fail cleanly rather
	// than double-decrement a freed handle.
	if err := mgr.Drop("mix"); err == nil {
		t.Fatal("expected second Drop to fail")
	}
}
