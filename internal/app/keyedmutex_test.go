package app

import (
	"fmt"
	"sync"
	"testing"
)

func lockTableSize(k *keyedMutex) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func TestKeyedMutex_EntryRemovedAfterRelease(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.lock("a")
	unlock()

	if n := lockTableSize(k); n != 0 {
		t.Errorf("lock table size = %d, want 0 after release", n)
	}
}

func TestKeyedMutex_MutualExclusionUnderContention(t *testing.T) {
	k := newKeyedMutex()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.lock("a")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	if n := lockTableSize(k); n != 0 {
		t.Errorf("lock table size = %d, want 0 after contention drains", n)
	}
}

func TestKeyedMutex_RegisterUnregisterChurn(t *testing.T) {
	o, _ := newTestOrchestrator(testConfig(), quietPolicies())

	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("agent-%d", i)
		if err := o.Register(Descriptor{ID: id}); err != nil {
			t.Fatal(err)
		}
		if err := o.Unregister(id); err != nil {
			t.Fatal(err)
		}
	}

	if n := lockTableSize(o.locks); n != 0 {
		t.Errorf("lock table size = %d, want 0 after register/unregister churn", n)
	}
}
