// Package testutil holds in-memory doubles shared by package tests.
package testutil

import (
	"sync"

	"helpr/internal/domain"
	"helpr/internal/models"
)

const (
	ScopeRoom       = "room"
	ScopeRoomExcept = "room-except"
	ScopeUser       = "user"
	ScopeRole       = "role"
	ScopeDisconnect = "disconnect"

	// EventDisconnect marks a recorded DisconnectUser call.
	EventDisconnect = "disconnect"
)

// Emission is one recorded Emit call.
type Emission struct {
	Scope   string
	ID      int64
	Except  int64
	Role    models.Role
	Event   string
	Payload any
}

// RecordingBroadcaster records every emission instead of delivering it.
type RecordingBroadcaster struct {
	mu        sync.Mutex
	emissions []Emission
}

func NewRecordingBroadcaster() *RecordingBroadcaster {
	return &RecordingBroadcaster{}
}

type recordingEmitter struct {
	b    *RecordingBroadcaster
	base Emission
}

func (e recordingEmitter) Emit(event string, payload any) {
	em := e.base
	em.Event = event
	em.Payload = payload
	e.b.mu.Lock()
	e.b.emissions = append(e.b.emissions, em)
	e.b.mu.Unlock()
}

func (r *RecordingBroadcaster) ToRoom(bookingID int64) domain.Emitter {
	return recordingEmitter{b: r, base: Emission{Scope: ScopeRoom, ID: bookingID}}
}

func (r *RecordingBroadcaster) ToRoomExcept(bookingID, userID int64) domain.Emitter {
	return recordingEmitter{b: r, base: Emission{Scope: ScopeRoomExcept, ID: bookingID, Except: userID}}
}

func (r *RecordingBroadcaster) ToUser(userID int64) domain.Emitter {
	return recordingEmitter{b: r, base: Emission{Scope: ScopeUser, ID: userID}}
}

func (r *RecordingBroadcaster) ToRole(role models.Role) domain.Emitter {
	return recordingEmitter{b: r, base: Emission{Scope: ScopeRole, Role: role}}
}

// DisconnectUser records the call as an emission in the disconnect scope.
func (r *RecordingBroadcaster) DisconnectUser(userID int64) {
	recordingEmitter{b: r, base: Emission{Scope: ScopeDisconnect, ID: userID}}.Emit(EventDisconnect, nil)
}

// All returns a copy of every emission so far.
func (r *RecordingBroadcaster) All() []Emission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Emission(nil), r.emissions...)
}

// Find returns emissions of event in order.
func (r *RecordingBroadcaster) Find(event string) []Emission {
	var out []Emission
	for _, em := range r.All() {
		if em.Event == event {
			out = append(out, em)
		}
	}
	return out
}

// To returns the events delivered to one scope and id, in order.
func (r *RecordingBroadcaster) To(scope string, id int64) []string {
	var out []string
	for _, em := range r.All() {
		if em.Scope == scope && em.ID == id {
			out = append(out, em.Event)
		}
	}
	return out
}

func (r *RecordingBroadcaster) Reset() {
	r.mu.Lock()
	r.emissions = nil
	r.mu.Unlock()
}
