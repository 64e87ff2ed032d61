package memory

import (
	"errors"
	"math/rand"
	"testing"

	bridge "github.com/wippyai/krakatau-bridge"
	bridgeerrors "github.com/wippyai/krakatau-bridge/errors"
)

func newTestAllocator(size uint32) *Allocator {
	return NewAllocator(Region{Start: DefaultArenaBase, Size: size})
}

func TestAllocator_Alloc(t *testing.T) {
	a := newTestAllocator(4096)

	var bufs []bridge.Buffer
	for _, n := range []uint32{1, 7, 8, 9, 100, 1000} {
		ptr, err := a.Alloc(n, 1)
		if err != nil {
			t.Fatalf("Alloc(%d): %v", n, err)
		}
		if ptr == bridge.Null {
			t.Fatalf("Alloc(%d) returned null", n)
		}
		if ptr%MinAlign != 0 {
			t.Errorf("Alloc(%d) = %#x, not %d-byte aligned", n, ptr, MinAlign)
		}
		if !a.Region().Contains(ptr, n) {
			t.Errorf("Alloc(%d) = %#x outside region", n, ptr)
		}
		if size, ok := a.SizeOf(ptr); !ok || size != n {
			t.Errorf("SizeOf(%#x) = %d, %v; want %d", ptr, size, ok, n)
		}
		bufs = append(bufs, bridge.Buffer{Ptr: ptr, Len: n})
	}

	for i := range bufs {
		for j := i + 1; j < len(bufs); j++ {
			if bufs[i].Overlaps(bufs[j]) {
				t.Errorf("buffers %+v and %+v overlap", bufs[i], bufs[j])
			}
		}
	}
}

func TestAllocator_ZeroSize(t *testing.T) {
	a := newTestAllocator(1024)
	ptr, err := a.Alloc(0, MinAlign)
	if ptr != bridge.Null || err == nil {
		t.Errorf("Alloc(0) = %#x, %v; want null and error", ptr, err)
	}
}

func TestAllocator_Alignment(t *testing.T) {
	a := newTestAllocator(8192)

	if _, err := a.Alloc(3, 8); err != nil {
		t.Fatal(err)
	}
	ptr, err := a.Alloc(16, 256)
	if err != nil {
		t.Fatal(err)
	}
	if ptr%256 != 0 {
		t.Errorf("Alloc align 256 = %#x", ptr)
	}

	if _, err := a.Alloc(16, 24); err == nil {
		t.Error("non power-of-two alignment should fail")
	}

	// padding before the aligned block stays usable
	small, err := a.Alloc(8, 8)
	if err != nil {
		t.Fatal(err)
	}
	if small > ptr {
		t.Errorf("small allocation %#x should reuse padding below %#x", small, ptr)
	}
}

func TestAllocator_Exhaustion(t *testing.T) {
	a := newTestAllocator(64)

	ptr, err := a.Alloc(64, MinAlign)
	if err != nil {
		t.Fatalf("Alloc whole region: %v", err)
	}

	_, err = a.Alloc(1, MinAlign)
	want := &bridgeerrors.Error{Phase: bridgeerrors.PhaseAlloc, Kind: bridgeerrors.KindAllocation}
	if !errors.Is(err, want) {
		t.Errorf("Alloc on full region error = %v, want allocation", err)
	}

	if err := a.Release(ptr, 64); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Alloc(64, MinAlign); err != nil {
		t.Errorf("Alloc after release: %v", err)
	}
}

func TestAllocator_ReleaseCoalesces(t *testing.T) {
	a := newTestAllocator(1024)

	var ptrs []uint32
	for i := 0; i < 8; i++ {
		ptr, err := a.Alloc(128, MinAlign)
		if err != nil {
			t.Fatalf("Alloc %d: %v", i, err)
		}
		ptrs = append(ptrs, ptr)
	}
	if st := a.Stats(); st.Free != 0 || st.Live != 8 {
		t.Fatalf("Stats after filling = %+v", st)
	}

	// release out of order to exercise both merge directions
	for _, i := range []int{1, 3, 0, 2, 7, 5, 6, 4} {
		if err := a.Release(ptrs[i], 128); err != nil {
			t.Fatalf("Release %d: %v", i, err)
		}
	}

	st := a.Stats()
	if st.Live != 0 || st.InUse != 0 {
		t.Errorf("Stats after release = %+v", st)
	}
	if st.Largest != 1024 || len(a.free) != 1 {
		t.Errorf("free list not coalesced: %+v", a.free)
	}
}

func TestAllocator_InvalidRelease(t *testing.T) {
	a := newTestAllocator(1024)
	invalidFree := &bridgeerrors.Error{Phase: bridgeerrors.PhaseAlloc, Kind: bridgeerrors.KindInvalidFree}

	ptr, err := a.Alloc(40, MinAlign)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("size mismatch", func(t *testing.T) {
		if err := a.Release(ptr, 48); !errors.Is(err, invalidFree) {
			t.Errorf("Release with wrong size = %v", err)
		}
		if _, ok := a.SizeOf(ptr); !ok {
			t.Error("buffer should still be live")
		}
	})

	t.Run("unknown pointer", func(t *testing.T) {
		if err := a.Release(ptr+8, 32); !errors.Is(err, invalidFree) {
			t.Errorf("Release interior pointer = %v", err)
		}
	})

	t.Run("double free", func(t *testing.T) {
		if err := a.Release(ptr, 40); err != nil {
			t.Fatalf("first Release: %v", err)
		}
		if err := a.Release(ptr, 40); !errors.Is(err, invalidFree) {
			t.Errorf("second Release = %v", err)
		}
		if st := a.Stats(); st.Free != 1024 {
			t.Errorf("free bytes = %d after rejected double free", st.Free)
		}
	})

	t.Run("free ignores invalid", func(t *testing.T) {
		a.Free(ptr, 40, MinAlign)
		if st := a.Stats(); st.Free != 1024 {
			t.Errorf("free bytes = %d", st.Free)
		}
	})
}

func TestAllocator_NeverReturnsZero(t *testing.T) {
	a := NewAllocator(Region{Start: 0, Size: 64})
	ptr, err := a.Alloc(8, MinAlign)
	if err != nil {
		t.Fatal(err)
	}
	if ptr == bridge.Null {
		t.Error("allocator returned address 0")
	}
}

func TestAllocator_RandomizedNoOverlap(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := newTestAllocator(64 << 10)
	live := map[uint32]uint32{}

	for step := 0; step < 5000; step++ {
		if len(live) > 0 && rng.Intn(3) == 0 {
			for ptr, n := range live {
				if err := a.Release(ptr, n); err != nil {
					t.Fatalf("step %d: Release: %v", step, err)
				}
				delete(live, ptr)
				break
			}
			continue
		}

		n := uint32(rng.Intn(2000) + 1)
		ptr, err := a.Alloc(n, MinAlign)
		if err != nil {
			continue
		}
		nb := bridge.Buffer{Ptr: ptr, Len: n}
		for p, l := range live {
			if nb.Overlaps(bridge.Buffer{Ptr: p, Len: l}) {
				t.Fatalf("step %d: %+v overlaps live buffer at %#x", step, nb, p)
			}
		}
		live[ptr] = n
	}

	for ptr, n := range live {
		if err := a.Release(ptr, n); err != nil {
			t.Fatal(err)
		}
	}
	if st := a.Stats(); st.Largest != 64<<10 {
		t.Errorf("Largest = %d after releasing everything", st.Largest)
	}
}
