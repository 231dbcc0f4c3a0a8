// Package appointment holds the bookable doctor time slots and the stores that
// persist them. All times are wall-clock values carried in UTC.
package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "02-01-2006"
	SlotLayout = "02-01-2006 15:04"
	TimeLayout = "15:04"
)

var (
	ErrSlotUnavailable = errors.New("slot is not available")
	ErrNoBooking       = errors.New("no matching booking")
	ErrInvalidPatient  = errors.New("patient id must be positive")
	// ErrSameSlot rejects a move onto the slot being moved from.
	ErrSameSlot = fmt.Errorf("%w: target is the current slot", ErrSlotUnavailable)
)

type Slot struct {
	At             time.Time `json:"at"`
	Doctor         string    `json:"doctor"`
	Specialization string    `json:"specialization"`
	Available      bool      `json:"available"`
	Patient        int64     `json:"patient,omitempty"` // 0 while available
}

// Key identifies one bookable slot.
type Key struct {
	At     time.Time
	Doctor string
}

func (s Slot) Key() Key {
	return Key{At: s.At, Doctor: s.Doctor}
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%s", k.Doctor, FormatSlot(k.At))
}

// Filter narrows Find. Zero values match everything.
type Filter struct {
	Day            time.Time
	At             time.Time
	Doctor         string
	Specialization string
	Patient        int64
	AvailableOnly  bool
}

// Store is the appointment book. Claim, Release and Move are conditional:
// they either apply fully or leave the book untouched.
type Store interface {
	Find(ctx context.Context, f Filter) ([]Slot, error)
	Claim(ctx context.Context, k Key, patient int64) error
	Release(ctx context.Context, k Key, patient int64) error
	Move(ctx context.Context, from, to Key, patient int64) error
}

func (f Filter) Match(s Slot) bool {
	if !f.Day.IsZero() && !sameDay(f.Day, s.At) {
		return false
	}
	if !f.At.IsZero() && !f.At.Equal(s.At) {
		return false
	}
	if f.Doctor != "" && !strings.EqualFold(f.Doctor, s.Doctor) {
		return false
	}
	if f.Specialization != "" && !strings.EqualFold(f.Specialization, s.Specialization) {
		return false
	}
	if f.Patient != 0 && s.Patient != f.Patient {
		return false
	}
	if f.AvailableOnly && !s.Available {
		return false
	}
	return true
}

func (k Key) matches(s Slot) bool {
	return k.At.Equal(s.At) && strings.EqualFold(k.Doctor, s.Doctor)
}

// Same reports whether both keys name the same slot.
func (k Key) Same(o Key) bool {
	return k.matches(Slot{At: o.At, Doctor: o.Doctor})
}

// checkMove holds the argument rules every backend applies before a Move.
func checkMove(from, to Key, patient int64) error {
	if patient <= 0 {
		return ErrInvalidPatient
	}
	if from.Same(to) {
		return fmt.Errorf("%w: %s", ErrSameSlot, to)
	}
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ParseDate parses "DD-MM-YYYY".
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must look like DD-MM-YYYY: %w", err)
	}
	return t, nil
}

// ParseSlot parses "DD-MM-YYYY HH:MM".
func ParseSlot(s string) (time.Time, error) {
	t, err := time.ParseInLocation(SlotLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must look like DD-MM-YYYY HH:MM: %w", err)
	}
	return t, nil
}

// ParseDateOrSlot accepts either layout; hasTime reports which one matched.
func ParseDateOrSlot(s string) (t time.Time, hasTime bool, err error) {
	if t, err := ParseSlot(s); err == nil {
		return t, true, nil
	}
	t, err = ParseDate(s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("date must look like DD-MM-YYYY or DD-MM-YYYY HH:MM")
	}
	return t, false, nil
}

func FormatSlot(t time.Time) string {
	return t.Format(SlotLayout)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func FormatClock(t time.Time) string {
	return t.Format(TimeLayout)
}

// FormatClock12 renders "8:00 AM" style times.
func FormatClock12(t time.Time) string {
	return t.Format("3:04 PM")
}
