package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-zwave/internal/device"
)

// fireDue advances the clock to the head alarm and fires it.
func (f *fixture) fireDue(t *testing.T, label string) {
	t.Helper()
	pending := f.g.Alarms().Pending()
	if len(pending) == 0 || pending[0].Label != label {
		t.Fatalf("pending = %+v, want %s at the head", pending, label)
	}
	f.clock.Set(pending[0].FiresAt)
	if !f.g.Alarms().Fire(context.Background()) {
		t.Fatalf("%s did not fire", label)
	}
}

func TestThermostatAlarmPushesChangedRooms(t *testing.T) {
	f := newFixture(t)
	f.addKitchenAndAttic(t)

	wantOK(t, f.dispatch("ROOM~PLUS~Kitchen"))
	f.fireDue(t, AlarmThermostat)

	sets := f.drv.CallsTo("SetValue")
	if len(sets) != 2 {
		t.Fatalf("SetValue calls = %+v, want both kitchen thermostats", sets)
	}
	for _, c := range sets {
		if (c.NodeID != 2 && c.NodeID != 3) || c.Value != device.Decimal(22) {
			t.Errorf("SetValue call = %+v, want Decimal(22) on node 2 or 3", c)
		}
	}
	if changed := f.g.Rooms().Changed(); len(changed) != 0 {
		t.Errorf("changed rooms = %+v, want none after push", changed)
	}
}

func TestUpdateAlarmBroadcasts(t *testing.T) {
	f := newFixture(t)
	b := &countingBroadcaster{}
	f.g.SetBroadcaster(b)

	f.g.Alarms().ScheduleIn(AlarmUpdate, time.Second)
	f.fireDue(t, AlarmUpdate)

	if b.Count() != 1 {
		t.Errorf("broadcasts = %d, want 1", b.Count())
	}
}

func TestSunAlarmsRespectAtHome(t *testing.T) {
	f := newFixture(t)
	wantOK(t, f.dispatch("SCENE~CREATE~Night"))
	f.drv.Reset()

	f.g.Alarms().ScheduleIn(AlarmSunset, time.Second)
	f.fireDue(t, AlarmSunset)
	if n := len(f.drv.CallsTo("ActivateScene")); n != 0 {
		t.Errorf("ActivateScene calls while away = %d, want 0", n)
	}

	f.clock.Set(time.Date(2026, 6, 1, 21, 0, 0, 0, time.UTC))
	wantOK(t, f.dispatch("SWITCH"))
	f.drv.Reset()

	f.g.Alarms().ScheduleIn(AlarmSunset, time.Second)
	f.fireDue(t, AlarmSunset)
	if calls := f.drv.CallsTo("ActivateScene"); len(calls) != 1 || calls[0].SceneID != 1 {
		t.Errorf("ActivateScene calls at home = %+v, want Night", calls)
	}
}

func TestUnknownAlarmActivatesScene(t *testing.T) {
	f := newFixture(t)
	wantOK(t, f.dispatch("SCENE~CREATE~Party"))
	f.drv.Reset()

	f.g.Alarms().ScheduleIn("Party", time.Second)
	f.fireDue(t, "Party")

	if calls := f.drv.CallsTo("ActivateScene"); len(calls) != 1 || calls[0].SceneID != 1 {
		t.Errorf("ActivateScene calls = %+v, want scene 1", calls)
	}
	if sc, _ := f.g.Scenes().Find("Party"); !sc.Active {
		t.Error("Party not marked active")
	}
}
