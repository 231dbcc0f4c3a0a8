package appointment

import "fmt"

// book is an in-memory slot table shared by the memory and csv stores.
// Callers hold the owning store's lock.
type book []Slot

func (b book) find(f Filter) []Slot {
	out := make([]Slot, 0, 8)
	for _, s := range b {
		if f.Match(s) {
			out = append(out, s)
		}
	}
	return out
}

func (b book) indexOf(k Key, pred func(Slot) bool) int {
	for i, s := range b {
		if k.matches(s) && pred(s) {
			return i
		}
	}
	return -1
}

func (b book) claim(k Key, patient int64) error {
	if patient <= 0 {
		return ErrInvalidPatient
	}
	i := b.indexOf(k, func(s Slot) bool { return s.Available })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrSlotUnavailable, k)
	}
	b[i].Available = false
	b[i].Patient = patient
	return nil
}

func (b book) release(k Key, patient int64) error {
	if patient <= 0 {
		return ErrInvalidPatient
	}
	i := b.indexOf(k, func(s Slot) bool { return !s.Available && s.Patient == patient })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNoBooking, k)
	}
	b[i].Available = true
	b[i].Patient = 0
	return nil
}

// move checks both ends before touching either row.
func (b book) move(from, to Key, patient int64) error {
	if err := checkMove(from, to, patient); err != nil {
		return err
	}
	src := b.indexOf(from, func(s Slot) bool { return !s.Available && s.Patient == patient })
	if src < 0 {
		return fmt.Errorf("%w: %s", ErrNoBooking, from)
	}
	dst := b.indexOf(to, func(s Slot) bool { return s.Available })
	if dst < 0 {
		return fmt.Errorf("%w: %s", ErrSlotUnavailable, to)
	}
	b[src].Available = true
	b[src].Patient = 0
	b[dst].Available = false
	b[dst].Patient = patient
	return nil
}

func (b book) clone() book {
	return append(book(nil), b...)
}
