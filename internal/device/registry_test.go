package device

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func switchValue(id uint64, on bool) CapabilityValue {
	return CapabilityValue{
		ID:       id,
		Class:    ClassSwitchBinary,
		Label:    LabelSwitch,
		Declared: TypeBool,
		Value:    Bool(on),
	}
}

func TestRegistryUpsert(t *testing.T) {
	r := NewRegistry()

	if !r.Upsert(1, 5) {
		t.Fatal("Upsert() = false on first add, want true")
	}
	if r.Upsert(1, 5) {
		t.Error("Upsert() = true on duplicate add, want false")
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}

	// Same node id in a different network is a different device.
	r.Upsert(2, 5)
	if r.Count() != 2 {
		t.Errorf("Count() = %d, want 2", r.Count())
	}
}

func TestRegistryUpsertStampsWithClock(t *testing.T) {
	at := time.Date(2026, 3, 3, 14, 5, 0, 0, time.UTC)
	r := NewRegistry()
	r.SetClock(func() time.Time { return at })

	r.Upsert(1, 5)
	d, err := r.Find(1, 5)
	if err != nil {
		t.Fatalf("Find() after Upsert() error = %v", err)
	}
	if !d.LastSeen.Equal(at) {
		t.Errorf("LastSeen = %v, want %v", d.LastSeen, at)
	}
}

func TestRegistryAddRemoveSequenceKeepsKeysUnique(t *testing.T) {
	r := NewRegistry()

	ops := []struct {
		add  bool
		node uint8
	}{
		{true, 1}, {true, 2}, {true, 1}, {false, 2}, {true, 2}, {true, 2},
		{false, 3}, {false, 1}, {true, 1}, {true, 3},
	}
	for _, op := range ops {
		if op.add {
			r.Upsert(7, op.node)
		} else {
			_ = r.Remove(7, op.node)
		}

		seen := make(map[Key]bool)
		for _, d := range r.List() {
			if seen[d.Key()] {
				t.Fatalf("duplicate device %+v in registry", d.Key())
			}
			seen[d.Key()] = true
		}
	}
	if r.Count() != 3 {
		t.Errorf("Count() = %d, want 3", r.Count())
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	r.Upsert(1, 5)
	_ = r.AddOrReplaceValue(1, 5, switchValue(100, false))

	if err := r.Remove(1, 5); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := r.Find(1, 5); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Find() after remove error = %v, want ErrDeviceNotFound", err)
	}
	if err := r.Remove(1, 5); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second Remove() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestAddOrReplaceValueIsIdempotentByID(t *testing.T) {
	r := NewRegistry()
	r.Upsert(1, 5)

	if err := r.AddOrReplaceValue(1, 5, switchValue(100, false)); err != nil {
		t.Fatalf("AddOrReplaceValue() error = %v", err)
	}
	if err := r.AddOrReplaceValue(1, 5, switchValue(100, true)); err != nil {
		t.Fatalf("AddOrReplaceValue() error = %v", err)
	}

	d, err := r.Find(1, 5)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(d.Values) != 1 {
		t.Fatalf("len(Values) = %d, want 1", len(d.Values))
	}
	if d.Values[0].Value != Bool(true) {
		t.Errorf("Value = %v, want true", d.Values[0].Value)
	}
}

func TestAddOrReplaceValuePreservesOrder(t *testing.T) {
	r := NewRegistry()
	r.Upsert(1, 5)

	for _, id := range []uint64{30, 10, 20} {
		_ = r.AddOrReplaceValue(1, 5, switchValue(id, false))
	}
	_ = r.AddOrReplaceValue(1, 5, switchValue(10, true))

	d, _ := r.Find(1, 5)
	want := []uint64{30, 10, 20}
	for i, v := range d.Values {
		if v.ID != want[i] {
			t.Errorf("Values[%d].ID = %d, want %d", i, v.ID, want[i])
		}
	}
}

func TestAddOrReplaceValueUnknownDevice(t *testing.T) {
	r := NewRegistry()
	err := r.AddOrReplaceValue(1, 9, switchValue(1, true))
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRemoveValue(t *testing.T) {
	r := NewRegistry()
	r.Upsert(1, 5)
	_ = r.AddOrReplaceValue(1, 5, switchValue(1, true))
	_ = r.AddOrReplaceValue(1, 5, switchValue(2, true))

	if err := r.RemoveValue(1, 5, 1); err != nil {
		t.Fatalf("RemoveValue() error = %v", err)
	}
	if err := r.RemoveValue(1, 5, 1); !errors.Is(err, ErrValueNotFound) {
		t.Errorf("RemoveValue() twice error = %v, want ErrValueNotFound", err)
	}

	d, _ := r.Find(1, 5)
	if len(d.Values) != 1 || d.Values[0].ID != 2 {
		t.Errorf("Values = %+v, want only id 2", d.Values)
	}
}

func TestFindReturnsCopy(t *testing.T) {
	r := NewRegistry()
	r.Upsert(1, 5)
	_ = r.AddOrReplaceValue(1, 5, switchValue(1, false))

	d, _ := r.Find(1, 5)
	d.Values[0].Value = Bool(true)
	d.Info.Name = "mutated"

	again, _ := r.Find(1, 5)
	if again.Values[0].Value != Bool(false) {
		t.Error("mutating a returned device changed the registry")
	}
	if again.Info.Name != "" {
		t.Error("mutating returned node info changed the registry")
	}
}

func TestResolveMappingCachesResult(t *testing.T) {
	r := NewRegistry()
	r.Upsert(1, 5)
	_ = r.SetNodeInfo(1, 5, NodeInfo{Basic: BasicRoutingSlave, Generic: GenericSwitchMultilevel, Specific: 0x01})

	class, err := r.ResolveMapping(1, 5)
	if err != nil {
		t.Fatalf("ResolveMapping() error = %v", err)
	}
	if class != ClassSwitchMultilevel {
		t.Errorf("class = %#x, want %#x", class, ClassSwitchMultilevel)
	}

	d, _ := r.Find(1, 5)
	if d.BasicMapping != ClassSwitchMultilevel {
		t.Errorf("BasicMapping = %#x, want cached %#x", d.BasicMapping, ClassSwitchMultilevel)
	}
}

func TestResolveMappingUnknownClass(t *testing.T) {
	r := NewRegistry()
	r.Upsert(1, 5)
	_ = r.SetNodeInfo(1, 5, NodeInfo{Generic: 0x55})

	if _, err := r.ResolveMapping(1, 5); !errors.Is(err, ErrNoMapping) {
		t.Errorf("error = %v, want ErrNoMapping", err)
	}
	if _, err := r.ResolveMapping(1, 6); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("error = %v, want ErrDeviceNotFound", err)
	}
}

func TestTouchAndFlags(t *testing.T) {
	r := NewRegistry()
	r.Upsert(1, 5)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_ = r.Touch(1, 5, at)
	_ = r.SetPolled(1, 5, true)
	_ = r.SetNeedsClockSync(1, 5, true)

	d, _ := r.Find(1, 5)
	if !d.LastSeen.Equal(at) {
		t.Errorf("LastSeen = %v, want %v", d.LastSeen, at)
	}
	if !d.Polled || !d.NeedsClockSync {
		t.Errorf("Polled=%v NeedsClockSync=%v, want both true", d.Polled, d.NeedsClockSync)
	}

	stats := r.Stats()
	if stats.Devices != 1 || stats.Polled != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	r.Upsert(1, 5)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = r.AddOrReplaceValue(1, 5, switchValue(uint64(n%4), n%2 == 0))
			_ = r.List()
			_, _ = r.Find(1, 5)
		}(i)
	}
	wg.Wait()

	d, _ := r.Find(1, 5)
	if len(d.Values) != 4 {
		t.Errorf("len(Values) = %d, want 4", len(d.Values))
	}
}
