package appointment

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

var csvHeader = []string{"date_slot", "specialization", "doctor_name", "is_available", "patient_to_attend"}

// CSVStore keeps the book in a doctor_availability.csv file. Every call reads
// the whole file; mutations rewrite it through a temp file and rename, and only
// when the operation succeeded.
type CSVStore struct {
	path string
	mu   sync.Mutex
}

func NewCSVStore(path string) (*CSVStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("csv path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open appointment csv: %w", err)
	}
	return &CSVStore{path: path}, nil
}

func (c *CSVStore) Find(_ context.Context, f Filter) ([]Slot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, err := c.load()
	if err != nil {
		return nil, err
	}
	return rows.find(f), nil
}

func (c *CSVStore) Claim(_ context.Context, k Key, patient int64) error {
	return c.mutate(func(b book) error { return b.claim(k, patient) })
}

func (c *CSVStore) Release(_ context.Context, k Key, patient int64) error {
	return c.mutate(func(b book) error { return b.release(k, patient) })
}

func (c *CSVStore) Move(_ context.Context, from, to Key, patient int64) error {
	return c.mutate(func(b book) error { return b.move(from, to, patient) })
}

func (c *CSVStore) mutate(apply func(book) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, err := c.load()
	if err != nil {
		return err
	}
	if err := apply(rows); err != nil {
		return err
	}
	return c.save(rows)
}

func (c *CSVStore) load() (book, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("open appointment csv: %w", err)
	}
	defer f.Close()
	slots, err := ReadCSV(f)
	if err != nil {
		return nil, err
	}
	return book(slots), nil
}

func (c *CSVStore) save(rows book) error {
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".appointments-*.csv")
	if err != nil {
		return fmt.Errorf("create temp csv: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, rows); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp csv: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replace appointment csv: %w", err)
	}
	return nil
}

// ReadCSV decodes the doctor_availability.csv layout. Patient ids written by
// pandas as floats ("1000082.0") are accepted.
func ReadCSV(r io.Reader) ([]Slot, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvHeader)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, name := range csvHeader {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("csv header is missing column %q", name)
		}
	}

	var slots []Slot
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		at, err := ParseSlot(rec[col["date_slot"]])
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		available, err := parseBool(rec[col["is_available"]])
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		patient, err := parsePatient(rec[col["patient_to_attend"]])
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}

		slots = append(slots, Slot{
			At:             at,
			Doctor:         strings.TrimSpace(rec[col["doctor_name"]]),
			Specialization: strings.TrimSpace(rec[col["specialization"]]),
			Available:      available,
			Patient:        patient,
		})
	}
	return slots, nil
}

func WriteCSV(w io.Writer, slots []Slot) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, s := range slots {
		patient := ""
		if s.Patient != 0 {
			patient = strconv.FormatInt(s.Patient, 10)
		}
		rec := []string{
			FormatSlot(s.At),
			s.Specialization,
			s.Doctor,
			formatBool(s.Available),
			patient,
		}
		if err := writer.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid is_available value %q", v)
	}
}

func formatBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

func parsePatient(v string) (int64, error) {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "nan") {
		return 0, nil
	}
	if id, err := strconv.ParseInt(v, 10, 64); err == nil {
		return id, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid patient_to_attend value %q", v)
	}
	return int64(f), nil
}
