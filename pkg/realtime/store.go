package realtime

import (
	"context"
	"sync"
	"time"
)

// Room holds state and a broadcaster for one room.
type Room[T any] struct {
	ID    string
	State T
	hub   *Broadcaster
}

type loop struct {
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}
}

// RoomStore manages rooms, their broadcasters and at most one timing loop per room.
type RoomStore[T any] struct {
	mu    sync.RWMutex
	rooms map[string]*Room[T]
	loops map[string]*loop
}

// NewRoomStore creates an empty room store.
func NewRoomStore[T any]() *RoomStore[T] {
	return &RoomStore[T]{
		rooms: make(map[string]*Room[T]),
		loops: make(map[string]*loop),
	}
}

// Create adds a room with the given id and state, and a new Broadcaster.
func (s *RoomStore[T]) Create(id string, state T) *Room[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &Room[T]{ID: id, State: state, hub: NewBroadcaster()}
	s.rooms[id] = r
	return r
}

// Get returns the room by ID if it exists.
func (s *RoomStore[T]) Get(id string) (*Room[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	return r, ok
}

// Delete stops the room's loop, disconnects its subscribers and forgets it.
func (s *RoomStore[T]) Delete(id string) {
	s.StopLoop(id)
	s.mu.Lock()
	r, ok := s.rooms[id]
	delete(s.rooms, id)
	s.mu.Unlock()
	if ok {
		r.hub.Close()
	}
}

// Len returns the number of rooms.
func (s *RoomStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Range calls fn for every room until fn returns false. fn must not call
// back into the store's write methods.
func (s *RoomStore[T]) Range(fn func(r *Room[T]) bool) {
	s.mu.RLock()
	rooms := make([]*Room[T], 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.RUnlock()
	for _, r := range rooms {
		if !fn(r) {
			return
		}
	}
}

// Publish notifies subscribers of the room's broadcaster. Unknown rooms are ignored.
func (s *RoomStore[T]) Publish(id string, events ...Event) {
	if hub, ok := s.Broadcaster(id); ok {
		hub.Publish(events...)
	}
}

// Broadcaster returns the broadcaster for the room.
func (s *RoomStore[T]) Broadcaster(id string) (*Broadcaster, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, false
	}
	return r.hub, true
}

// TickFunc is called by RunLoop to determine the next wake time and events to publish.
// stop true means exit the loop.
type TickFunc[T any] func(state T, now time.Time) (next time.Time, events []Event, stop bool)

// RunLoop starts a timing loop for the room. If a loop already exists for id it
// is left running and RunLoop reports false; callers that want a fresh loop
// call StopLoop first.
func (s *RoomStore[T]) RunLoop(id string, getState func() T, tick TickFunc[T]) bool {
	s.mu.Lock()
	if _, ok := s.loops[id]; ok {
		s.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &loop{cancel: cancel, wake: make(chan struct{}, 1), done: make(chan struct{})}
	s.loops[id] = l
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			// A StopLoop followed by a new RunLoop may already have replaced us.
			if s.loops[id] == l {
				delete(s.loops, id)
			}
			s.mu.Unlock()
			close(l.done)
		}()

		for {
			if ctx.Err() != nil {
				return
			}
			next, events, stop := tick(getState(), time.Now().UTC())
			if ctx.Err() != nil {
				return
			}
			// Publish events immediately so UI updates as soon as state advances,
			// not when the next timer fires.
			if len(events) > 0 {
				s.Publish(id, events...)
			}
			if stop {
				return
			}
			wait := time.Until(next)
			if wait < 0 {
				wait = 0
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			case <-l.wake:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			}
		}
	}()
	return true
}

// StopLoop cancels the room's loop, if any, and waits for it to exit, so no
// tick of the old loop can run after StopLoop returns.
func (s *RoomStore[T]) StopLoop(id string) {
	s.mu.Lock()
	l, ok := s.loops[id]
	if ok {
		delete(s.loops, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	l.cancel()
	<-l.done
}

// Running reports whether a loop is registered for id.
func (s *RoomStore[T]) Running(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.loops[id]
	return ok
}

// Wake unblocks the room's loop so it recomputes immediately.
func (s *RoomStore[T]) Wake(id string) {
	s.mu.RLock()
	l, ok := s.loops[id]
	s.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
