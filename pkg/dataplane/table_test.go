package dataplane

import (
	"sync"
	"testing"
)

func TestTableRegisterLookup(t *testing.T) {
	tbl := NewTable()

	if _, ok := tbl.Lookup(8080); ok {
		t.Fatal("lookup on empty table returned a binding")
	}

	want := PortValue{PID: 4242, Addr: 0x0a000005}
	if err := tbl.Register(8080, want); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, ok := tbl.Lookup(8080)
	if !ok {
		t.Fatal("registered port not found")
	}
	if got != want {
		t.Errorf("Lookup(8080) = %+v, want %+v", got, want)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tbl.Len())
	}
}

func TestTableRegisterPortZero(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Register(0, PortValue{PID: 1}); err == nil {
		t.Error("Register(0) succeeded, want error for reserved port")
	}
}

func TestTableRegisterReplace(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Register(8080, PortValue{PID: 100}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := tbl.Register(8080, PortValue{PID: 200}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, _ := tbl.Lookup(8080)
	if got.PID != 200 {
		t.Errorf("PID after replace = %d, want 200", got.PID)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() after replace = %d, want 1", tbl.Len())
	}
}

func TestTableUnregister(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Register(8080, PortValue{PID: 1}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if !tbl.Unregister(8080) {
		t.Error("Unregister(8080) = false, want true")
	}
	if _, ok := tbl.Lookup(8080); ok {
		t.Error("binding still present after Unregister")
	}
	if tbl.Unregister(8080) {
		t.Error("Unregister of absent port = true, want false")
	}
}

func TestTableCapacity(t *testing.T) {
	tbl := NewTable()
	for p := uint16(1); p <= MaxPortEntries; p++ {
		if err := tbl.Register(p, PortValue{PID: uint32(p)}); err != nil {
			t.Fatalf("Register(%d): %v", p, err)
		}
	}

	if err := tbl.Register(MaxPortEntries+1, PortValue{PID: 1}); err == nil {
		t.Error("Register beyond capacity succeeded, want error")
	}

	// Replacing an existing binding must still work at capacity.
	if err := tbl.Register(1, PortValue{PID: 9999}); err != nil {
		t.Errorf("replace at capacity: %v", err)
	}
}

func TestTableEntriesIsACopy(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Register(8080, PortValue{PID: 1}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	entries := tbl.Entries()
	delete(entries, 8080)

	if _, ok := tbl.Lookup(8080); !ok {
		t.Error("mutating Entries() result affected the table")
	}
}

func TestTablePortsSorted(t *testing.T) {
	tbl := NewTable()
	for _, p := range []uint16{9090, 53, 8080} {
		if err := tbl.Register(p, PortValue{PID: 1}); err != nil {
			t.Fatalf("Register(%d): %v", p, err)
		}
	}

	ports := tbl.Ports()
	want := []uint16{53, 8080, 9090}
	if len(ports) != len(want) {
		t.Fatalf("Ports() = %v, want %v", ports, want)
	}
	for i := range want {
		if ports[i] != want[i] {
			t.Fatalf("Ports() = %v, want %v", ports, want)
		}
	}
}

// Readers must never block or observe a torn entry while the control
// plane rewrites the table.
func TestTableConcurrentReaders(t *testing.T) {
	tbl := NewTable()
	done := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				if v, ok := tbl.Lookup(8080); ok && v.PID == 0 {
					t.Error("observed zero PID for a registered port")
					return
				}
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		if err := tbl.Register(8080, PortValue{PID: uint32(i + 1)}); err != nil {
			t.Errorf("Register: %v", err)
			break
		}
		tbl.Unregister(8080)
	}
	close(done)
	wg.Wait()
}
