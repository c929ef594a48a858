package lockmgr

import (
	"bytes"
	"sync"
	"testing"

	"github.com/dmap-io/dmap/lib/cmap"
	"github.com/dmap-io/dmap/lib/store/lmap"
)

func newTestManager() ILockManager {
	return NewLockManager(lmap.NewLocalMap(func() *cmap.Service {
		return cmap.NewService(nil)
	}))
}

func TestAcquireAndRelease(t *testing.T) {
	mgr := newTestManager()

	ok, ownerID, err := mgr.AcquireLock("resource")
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if !ok || len(ownerID) != ownerIDBytes {
		t.Fatalf("expected lock acquired with %d byte owner ID, got ok=%v len=%d",
			ownerIDBytes, ok, len(ownerID))
	}

	released, err := mgr.ReleaseLock("resource", ownerID)
	if err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}
	if !released {
		t.Fatalf("expected lock released")
	}
}

func TestAcquireHeldLockFails(t *testing.T) {
	mgr := newTestManager()

	ok, ownerID, err := mgr.AcquireLock("resource")
	if err != nil || !ok {
		t.Fatalf("first acquire must succeed: ok=%v err=%v", ok, err)
	}

	ok2, ownerID2, err := mgr.AcquireLock("resource")
	if err != nil {
		t.Fatalf("second acquire errored: %v", err)
	}
	if ok2 || ownerID2 != nil {
		t.Fatalf("second acquire must fail while the lock is held")
	}

	// After release the lock is available again
	if released, err := mgr.ReleaseLock("resource", ownerID); err != nil || !released {
		t.Fatalf("release failed: ok=%v err=%v", released, err)
	}
	ok3, _, err := mgr.AcquireLock("resource")
	if err != nil || !ok3 {
		t.Fatalf("acquire after release must succeed: ok=%v err=%v", ok3, err)
	}
}

func TestReleaseWithWrongOwnerFails(t *testing.T) {
	mgr := newTestManager()

	ok, ownerID, err := mgr.AcquireLock("resource")
	if err != nil || !ok {
		t.Fatalf("acquire failed: ok=%v err=%v", ok, err)
	}

	wrong := make([]byte, len(ownerID))
	copy(wrong, ownerID)
	wrong[0] ^= 0xff

	released, err := mgr.ReleaseLock("resource", wrong)
	if err != nil {
		t.Fatalf("ReleaseLock errored: %v", err)
	}
	if released {
		t.Fatalf("release with wrong owner must fail")
	}

	// The rightful owner can still release
	if released, err := mgr.ReleaseLock("resource", ownerID); err != nil || !released {
		t.Fatalf("owner release failed: ok=%v err=%v", released, err)
	}
}

func TestReleaseMissingLockSucceeds(t *testing.T) {
	mgr := newTestManager()

	released, err := mgr.ReleaseLock("no-such-lock", []byte("owner"))
	if err != nil {
		t.Fatalf("ReleaseLock errored: %v", err)
	}
	if !released {
		t.Fatalf("releasing a non-existent lock must report success")
	}
}

func TestManagersShareLockState(t *testing.T) {
	m := lmap.NewLocalMap(func() *cmap.Service { return cmap.NewService(nil) })
	mgr1 := NewLockManager(m)
	mgr2 := NewLockManager(m)

	ok, ownerID, err := mgr1.AcquireLock("shared")
	if err != nil || !ok {
		t.Fatalf("acquire failed: ok=%v err=%v", ok, err)
	}

	if ok2, _, _ := mgr2.AcquireLock("shared"); ok2 {
		t.Fatalf("second manager must see the lock as held")
	}

	// Release through the other manager works with the right credential
	if released, err := mgr2.ReleaseLock("shared", ownerID); err != nil || !released {
		t.Fatalf("cross-manager release failed: ok=%v err=%v", released, err)
	}
}

func TestConcurrentContention(t *testing.T) {
	mgr := newTestManager()

	const contenders = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners [][]byte
	)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, ownerID, err := mgr.AcquireLock("contested")
			if err != nil {
				t.Errorf("AcquireLock failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners = append(winners, ownerID)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %d", len(winners))
	}
	if released, err := mgr.ReleaseLock("contested", winners[0]); err != nil || !released {
		t.Fatalf("winner release failed: ok=%v err=%v", released, err)
	}
}

func TestGenerateOwnerID(t *testing.T) {
	a, err := generateOwnerID()
	if err != nil {
		t.Fatalf("generateOwnerID failed: %v", err)
	}
	b, err := generateOwnerID()
	if err != nil {
		t.Fatalf("generateOwnerID failed: %v", err)
	}
	if len(a) != ownerIDBytes || len(b) != ownerIDBytes {
		t.Fatalf("unexpected owner ID length: %d, %d", len(a), len(b))
	}
	if bytes.Equal(a, b) {
		t.Fatalf("owner IDs must be unique")
	}
}
