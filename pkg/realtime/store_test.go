package realtime

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRoomStore(t *testing.T) {
	s := NewRoomStore[string]()
	if s == nil {
		t.Fatal("NewRoomStore returned nil")
	}
	if s.Len() != 0 {
		t.Errorf("Len %d, want 0", s.Len())
	}
}

func TestRoomStore_Create_Get(t *testing.T) {
	s := NewRoomStore[string]()
	s.Create("room1", "state1")
	room, ok := s.Get("room1")
	if !ok {
		t.Fatal("Get returned false for existing room")
	}
	if room.ID != "room1" {
		t.Errorf("room ID %q, want room1", room.ID)
	}
	if room.State != "state1" {
		t.Errorf("room State %q, want state1", room.State)
	}

	_, ok = s.Get("nonexistent")
	if ok {
		t.Error("Get should return false for missing ID")
	}
}

func TestRoomStore_Publish(t *testing.T) {
	s := NewRoomStore[string]()
	s.Create("r1", "x")
	hub, ok := s.Broadcaster("r1")
	if !ok {
		t.Fatal("Broadcaster returned false for existing room")
	}
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	s.Publish("r1", Event{Name: "event1"})
	if got := <-ch; got.Name != "event1" {
		t.Errorf("got %q, want event1", got.Name)
	}
	// Unknown rooms are ignored.
	s.Publish("missing", Event{Name: "event2"})
}

func TestRoomStore_DeleteClosesSubscribers(t *testing.T) {
	s := NewRoomStore[string]()
	s.Create("r1", "x")
	hub, _ := s.Broadcaster("r1")
	ch := hub.Subscribe()
	s.Delete("r1")
	if _, open := <-ch; open {
		t.Error("subscriber channel should be closed after Delete")
	}
	if _, ok := s.Get("r1"); ok {
		t.Error("room should be gone after Delete")
	}
	if s.Len() != 0 {
		t.Errorf("Len %d, want 0", s.Len())
	}
}

func TestRoomStore_Range(t *testing.T) {
	s := NewRoomStore[int]()
	s.Create("a", 1)
	s.Create("b", 2)
	s.Create("c", 3)
	sum := 0
	s.Range(func(r *Room[int]) bool {
		sum += r.State
		return true
	})
	if sum != 6 {
		t.Errorf("sum %d, want 6", sum)
	}
	visited := 0
	s.Range(func(*Room[int]) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Errorf("visited %d, want 1", visited)
	}
}

func TestRoomStore_RunLoopPublishesAndStops(t *testing.T) {
	s := NewRoomStore[string]()
	s.Create("r1", "x")
	hub, _ := s.Broadcaster("r1")
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	var calls atomic.Int32
	started := s.RunLoop("r1", func() string { return "x" }, func(state string, now time.Time) (time.Time, []Event, bool) {
		n := calls.Add(1)
		return now, []Event{{Name: "tick"}}, n >= 3
	})
	if !started {
		t.Fatal("RunLoop should start")
	}
	for i := 0; i < 3; i++ {
		select {
		case got := <-ch:
			if got.Name != "tick" {
				t.Errorf("got %q, want tick", got.Name)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for tick")
		}
	}
	deadline := time.Now().Add(time.Second)
	for s.Running("r1") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.Running("r1") {
		t.Error("loop should have exited after stop")
	}
}

func TestRoomStore_RunLoopRejectsSecondLoop(t *testing.T) {
	s := NewRoomStore[string]()
	s.Create("r1", "x")
	block := func(string, time.Time) (time.Time, []Event, bool) {
		return time.Now().Add(time.Hour), nil, false
	}
	if !s.RunLoop("r1", func() string { return "x" }, block) {
		t.Fatal("first RunLoop should start")
	}
	if s.RunLoop("r1", func() string { return "x" }, block) {
		t.Error("second RunLoop should be rejected while the first runs")
	}
	s.StopLoop("r1")
	if s.Running("r1") {
		t.Error("Running after StopLoop")
	}
	if !s.RunLoop("r1", func() string { return "x" }, block) {
		t.Error("RunLoop should start again after StopLoop")
	}
	s.StopLoop("r1")
}

func TestRoomStore_StopLoopWaitsForExit(t *testing.T) {
	s := NewRoomStore[string]()
	s.Create("r1", "x")
	var after atomic.Bool
	var stopped atomic.Bool
	s.RunLoop("r1", func() string { return "x" }, func(string, time.Time) (time.Time, []Event, bool) {
		if stopped.Load() {
			after.Store(true)
		}
		return time.Now().Add(5 * time.Millisecond), nil, false
	})
	time.Sleep(20 * time.Millisecond)
	s.StopLoop("r1")
	stopped.Store(true)
	time.Sleep(20 * time.Millisecond)
	if after.Load() {
		t.Error("tick ran after StopLoop returned")
	}
}

func TestRoomStore_Wake(t *testing.T) {
	s := NewRoomStore[string]()
	s.Wake("nonexistent")

	s.Create("r1", "x")
	var calls atomic.Int32
	s.RunLoop("r1", func() string { return "x" }, func(string, time.Time) (time.Time, []Event, bool) {
		calls.Add(1)
		return time.Now().Add(time.Hour), nil, false
	})
	defer s.StopLoop("r1")
	deadline := time.Now().Add(time.Second)
	for calls.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	s.Wake("r1")
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if calls.Load() < 2 {
		t.Errorf("calls %d, want at least 2 after Wake", calls.Load())
	}
}
