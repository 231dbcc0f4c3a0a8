package clinic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()

	c, err := Default()
	require.NoError(t, err)
	assert.Len(t, c.Doctors, 10)
	assert.Len(t, c.Specializations, 7)

	d, ok := c.Doctor("John Doe")
	require.True(t, ok)
	assert.Equal(t, "general_dentist", d.Specialization)
	assert.True(t, c.HasSpecialization("Orthodontist"))
	assert.False(t, c.HasSpecialization("cardiologist"))
}

func TestParseRejectsUnknownSpecialization(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("specializations: [a]\ndoctors:\n  - name: x\n    specialization: b\n"))
	assert.ErrorContains(t, err, "unknown specialization")

	_, err = Parse([]byte("specializations: [a]\ndoctors:\n  - name: x\n    specialization: a\n  - name: X\n    specialization: a\n"))
	assert.ErrorContains(t, err, "listed twice")

	_, err = Parse([]byte("specializations: [a]\ndoctors:\n  - name: x\n    specialization: a\nschedule:\n  cron: nope\n  days: 1\n"))
	assert.ErrorContains(t, err, "invalid schedule cron")
}

func TestGenerateSlotsFollowsCron(t *testing.T) {
	t.Parallel()

	c := &Catalog{
		Specializations: []string{"general_dentist"},
		Doctors:         []Doctor{{Name: "john doe", Specialization: "general_dentist"}},
		Schedule:        Schedule{Cron: "0 8,9 * * 1-5", Days: 7},
	}
	// Friday evening: the window covers the next five weekdays.
	from := time.Date(2025, 8, 1, 18, 0, 0, 0, time.UTC)

	slots, err := c.GenerateSlots(from)
	require.NoError(t, err)
	require.Len(t, slots, 10)

	first := slots[0]
	assert.Equal(t, time.Date(2025, 8, 4, 8, 0, 0, 0, time.UTC), first.At)
	assert.True(t, first.Available)
	assert.Zero(t, first.Patient)
	for _, s := range slots {
		assert.NotEqual(t, time.Saturday, s.At.Weekday())
		assert.NotEqual(t, time.Sunday, s.At.Weekday())
	}
}
