package orchestrator

import (
	"sync"
	"testing"

	"github.com/forgeworks/forge/model"
)

func TestTryReserveWithinLimit(t *testing.T) {
	l := NewLedger()

	overage, ok := l.TryReserve("p1", 900, 1000, 50)
	if !ok {
		t.Fatalf("expected reservation to fit, got overage %d", overage)
	}
	if l.Reserved("p1") != 50 {
		t.Errorf("expected 50 reserved, got %d", l.Reserved("p1"))
	}
}

func TestTryReserveOverage(t *testing.T) {
	l := NewLedger()

	if _, ok := l.TryReserve("p1", 900, 1000, 50); !ok {
		t.Fatal("first reservation should fit")
	}

	// 900 spent + 50 reserved + 200 estimate = 1150 against a 1000 limit.
	overage, ok := l.TryReserve("p1", 900, 1000, 200)
	if ok {
		t.Fatal("expected rejection")
	}
	if overage != 150 {
		t.Errorf("expected overage of 150 cents, got %d", overage)
	}
	if l.Reserved("p1") != 50 {
		t.Errorf("rejected reserve must not change the ledger, got %d", l.Reserved("p1"))
	}
}

func TestReleaseClampsAtZero(t *testing.T) {
	l := NewLedger()

	l.TryReserve("p1", 0, 1000, 100)
	l.Release("p1", 300)
	if got := l.Reserved("p1"); got != 0 {
		t.Errorf("expected zero after over-release, got %d", got)
	}

	l.Release("p2", 50)
	if got := l.Reserved("p2"); got != 0 {
		t.Errorf("release without reserve must stay zero, got %d", got)
	}
}

func TestReserveReleaseNetsZero(t *testing.T) {
	l := NewLedger()

	l.TryReserve("p1", 0, 1000, 200)
	l.TryReserve("p1", 0, 1000, 300)
	l.Release("p1", 200)
	l.Release("p1", 300)

	if got := l.Reserved("p1"); got != 0 {
		t.Errorf("expected zero after matched releases, got %d", got)
	}
}

func TestConcurrentReservesRespectLimit(t *testing.T) {
	l := NewLedger()

	const workers = 10
	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := l.TryReserve("p1", 0, 500, 100)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	accepted := 0
	for ok := range results {
		if ok {
			accepted++
		}
	}
	if accepted != 5 {
		t.Errorf("expected exactly 5 of %d reservations to fit, got %d", workers, accepted)
	}
	if got := l.Reserved("p1"); got != model.Cents(500) {
		t.Errorf("expected 500 reserved, got %d", got)
	}
}
