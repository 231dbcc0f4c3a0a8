// Package clinic describes the doctors, their specializations and the slot
// schedule the appointment book is generated from.
package clinic

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/tanpawarit/clinic-appointment-agent/agent/appointment"
)

//go:embed clinic.yaml
var defaultCatalog []byte

type Doctor struct {
	Name           string `yaml:"name"`
	Specialization string `yaml:"specialization"`
}

type Schedule struct {
	Cron string `yaml:"cron"`
	Days int    `yaml:"days"`
}

type Catalog struct {
	Specializations []string `yaml:"specializations"`
	Doctors         []Doctor `yaml:"doctors"`
	Schedule        Schedule `yaml:"schedule"`
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from path, or the built-in one when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read clinic catalog: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode clinic catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) Validate() error {
	if len(c.Doctors) == 0 {
		return errors.New("clinic catalog has no doctors")
	}
	known := make(map[string]struct{}, len(c.Specializations))
	for _, s := range c.Specializations {
		known[s] = struct{}{}
	}
	seen := make(map[string]struct{}, len(c.Doctors))
	for _, d := range c.Doctors {
		key := strings.ToLower(d.Name)
		if key == "" {
			return errors.New("clinic catalog has a doctor without a name")
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("doctor %q is listed twice", d.Name)
		}
		seen[key] = struct{}{}
		if _, ok := known[d.Specialization]; !ok {
			return fmt.Errorf("doctor %q has unknown specialization %q", d.Name, d.Specialization)
		}
	}
	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return fmt.Errorf("invalid schedule cron: %w", err)
		}
	}
	return nil
}

// DoctorNames returns the doctor names in catalog order.
func (c *Catalog) DoctorNames() []string {
	out := make([]string, 0, len(c.Doctors))
	for _, d := range c.Doctors {
		out = append(out, d.Name)
	}
	return out
}

func (c *Catalog) Doctor(name string) (Doctor, bool) {
	for _, d := range c.Doctors {
		if strings.EqualFold(d.Name, strings.TrimSpace(name)) {
			return d, true
		}
	}
	return Doctor{}, false
}

func (c *Catalog) HasSpecialization(name string) bool {
	for _, s := range c.Specializations {
		if strings.EqualFold(s, strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

// GenerateSlots expands the schedule into free slots for every doctor,
// starting at from (exclusive) and covering Schedule.Days days.
func (c *Catalog) GenerateSlots(from time.Time) ([]appointment.Slot, error) {
	if c.Schedule.Cron == "" || c.Schedule.Days <= 0 {
		return nil, nil
	}
	sched, err := cron.ParseStandard(c.Schedule.Cron)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule cron: %w", err)
	}

	from = from.UTC()
	until := from.AddDate(0, 0, c.Schedule.Days)
	var starts []time.Time
	for t := sched.Next(from); !t.IsZero() && t.Before(until); t = sched.Next(t) {
		starts = append(starts, t)
	}

	slots := make([]appointment.Slot, 0, len(starts)*len(c.Doctors))
	for _, d := range c.Doctors {
		for _, at := range starts {
			slots = append(slots, appointment.Slot{
				At:             at,
				Doctor:         d.Name,
				Specialization: d.Specialization,
				Available:      true,
			})
		}
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].At.Before(slots[j].At) })
	return slots, nil
}
