package appointment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type slotRow struct {
	bun.BaseModel `bun:"table:appointment_slots,alias:s"`

	ID              int64     `bun:"id,pk,autoincrement"`
	SlotAt          time.Time `bun:"slot_at,notnull"`
	Specialization  string    `bun:"specialization,notnull"`
	DoctorName      string    `bun:"doctor_name,notnull"`
	IsAvailable     bool      `bun:"is_available,notnull"`
	PatientToAttend int64     `bun:"patient_to_attend,nullzero"`
}

func (r slotRow) slot() Slot {
	return Slot{
		At:             r.SlotAt.UTC(),
		Doctor:         r.DoctorName,
		Specialization: r.Specialization,
		Available:      r.IsAvailable,
		Patient:        r.PatientToAttend,
	}
}

// PostgresStore is the shared appointment book. Claim and Release are single
// conditional updates; Move runs both in one transaction.
type PostgresStore struct {
	db *bun.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func NewPostgresStoreFromDB(db *bun.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

// Migrate creates the slot table and its (slot_at, doctor_name) unique index.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.NewCreateTable().
		Model((*slotRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create appointment table: %w", err)
	}
	if _, err := p.db.NewCreateIndex().
		Model((*slotRow)(nil)).
		Index("appointment_slots_slot_doctor_uidx").
		Unique().
		IfNotExists().
		Column("slot_at", "doctor_name").
		Exec(ctx); err != nil {
		return fmt.Errorf("create appointment index: %w", err)
	}
	return nil
}

// Seed inserts slots that are not in the table yet and reports how many were added.
func (p *PostgresStore) Seed(ctx context.Context, slots []Slot) (int, error) {
	if len(slots) == 0 {
		return 0, nil
	}
	rows := make([]slotRow, 0, len(slots))
	for _, s := range slots {
		rows = append(rows, slotRow{
			SlotAt:          s.At.UTC(),
			Specialization:  s.Specialization,
			DoctorName:      s.Doctor,
			IsAvailable:     s.Available,
			PatientToAttend: s.Patient,
		})
	}
	res, err := p.db.NewInsert().
		Model(&rows).
		On("CONFLICT (slot_at, doctor_name) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed appointments: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (p *PostgresStore) Find(ctx context.Context, f Filter) ([]Slot, error) {
	var rows []slotRow
	q := p.db.NewSelect().Model(&rows).OrderExpr("slot_at ASC, doctor_name ASC")
	if !f.Day.IsZero() {
		y, m, d := f.Day.Date()
		start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		q = q.Where("slot_at >= ?", start).Where("slot_at < ?", start.AddDate(0, 0, 1))
	}
	if !f.At.IsZero() {
		q = q.Where("slot_at = ?", f.At.UTC())
	}
	if f.Doctor != "" {
		q = q.Where("lower(doctor_name) = lower(?)", f.Doctor)
	}
	if f.Specialization != "" {
		q = q.Where("lower(specialization) = lower(?)", f.Specialization)
	}
	if f.Patient != 0 {
		q = q.Where("patient_to_attend = ?", f.Patient)
	}
	if f.AvailableOnly {
		q = q.Where("is_available = ?", true)
	}
	if err := q.Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find appointments: %w", err)
	}

	out := make([]Slot, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.slot())
	}
	return out, nil
}

func (p *PostgresStore) Claim(ctx context.Context, k Key, patient int64) error {
	if patient <= 0 {
		return ErrInvalidPatient
	}
	return claimRow(ctx, p.db, k, patient)
}

func (p *PostgresStore) Release(ctx context.Context, k Key, patient int64) error {
	if patient <= 0 {
		return ErrInvalidPatient
	}
	return releaseRow(ctx, p.db, k, patient)
}

func (p *PostgresStore) Move(ctx context.Context, from, to Key, patient int64) error {
	if err := checkMove(from, to, patient); err != nil {
		return err
	}
	return p.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := releaseRow(ctx, tx, from, patient); err != nil {
			return err
		}
		return claimRow(ctx, tx, to, patient)
	})
}

func claimRow(ctx context.Context, db bun.IDB, k Key, patient int64) error {
	res, err := db.NewUpdate().
		Model((*slotRow)(nil)).
		Set("is_available = ?", false).
		Set("patient_to_attend = ?", patient).
		Where("slot_at = ?", k.At.UTC()).
		Where("lower(doctor_name) = lower(?)", k.Doctor).
		Where("is_available = ?", true).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("claim slot %s: %w", k, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSlotUnavailable, k)
	}
	return nil
}

func releaseRow(ctx context.Context, db bun.IDB, k Key, patient int64) error {
	res, err := db.NewUpdate().
		Model((*slotRow)(nil)).
		Set("is_available = ?", true).
		Set("patient_to_attend = NULL").
		Where("slot_at = ?", k.At.UTC()).
		Where("lower(doctor_name) = lower(?)", k.Doctor).
		Where("is_available = ?", false).
		Where("patient_to_attend = ?", patient).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("release slot %s: %w", k, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNoBooking, k)
	}
	return nil
}
