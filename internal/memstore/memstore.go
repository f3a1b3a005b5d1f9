// Package memstore is an in-memory implementation of every repository and of
// the audit sink. Erasure transactions work on a copy of the state that is
// swapped in only on commit, so a failed transaction leaves nothing behind.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/absence"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/audit"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
	"github.com/hackgods/clinic-scheduling/internal/patient"
)

// Operation names accepted by FailOn.
const (
	OpCreateAppointment      = "CreateAppointment"
	OpCreateSeries           = "CreateSeries"
	OpCountOverlapping       = "CountOverlapping"
	OpCreateAbsence          = "CreateAbsence"
	OpCreatePatient          = "CreatePatient"
	OpLockPatient            = "LockPatient"
	OpDetachAppointments     = "DetachAppointments"
	OpDeleteRecurrenceSeries = "DeleteRecurrenceSeries"
	OpDeletePatient          = "DeletePatient"
	OpAuditRecord            = "AuditRecord"
)

var ErrInjected = errors.New("injected failure")

type Provider struct {
	ID   int64
	Name string
}

type state struct {
	providers    map[int64]Provider
	patients     map[int64]patient.Patient
	appointments map[int64]appointment.Appointment
	series       map[int64]appointment.Series
	absences     map[int64]absence.Absence
	types        map[appointment.Type]appointment.TypeSettings
}

func (s *state) clone() *state {
	c := &state{
		providers:    make(map[int64]Provider, len(s.providers)),
		patients:     make(map[int64]patient.Patient, len(s.patients)),
		appointments: make(map[int64]appointment.Appointment, len(s.appointments)),
		series:       make(map[int64]appointment.Series, len(s.series)),
		absences:     make(map[int64]absence.Absence, len(s.absences)),
		types:        make(map[appointment.Type]appointment.TypeSettings, len(s.types)),
	}
	for k, v := range s.providers {
		c.providers[k] = v
	}
	for k, v := range s.patients {
		c.patients[k] = v
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	for k, v := range s.series {
		c.series[k] = v
	}
	for k, v := range s.absences {
		c.absences[k] = v
	}
	for k, v := range s.types {
		c.types[k] = v
	}
	return c
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	st       *state
	events   []audit.Event
	nextID   int64
	failures map[string]error
	now      func() time.Time
}

func New() *Store {
	s := &Store{
		st: &state{
			providers:    map[int64]Provider{},
			patients:     map[int64]patient.Patient{},
			appointments: map[int64]appointment.Appointment{},
			series:       map[int64]appointment.Series{},
			absences:     map[int64]absence.Absence{},
			types:        map[appointment.Type]appointment.TypeSettings{},
		},
		failures: map[string]error{},
		now:      time.Now,
	}
	for _, ts := range defaultTypes {
		s.st.types[ts.Code] = ts
	}
	return s
}

var defaultTypes = []appointment.TypeSettings{
	{Code: appointment.TypeConsultation, Label: "Consultation", DefaultDuration: 30 * time.Minute, Color: "#2f80ed"},
	{Code: appointment.TypeFollowUp, Label: "Follow-up", DefaultDuration: 20 * time.Minute, Color: "#27ae60"},
	{Code: appointment.TypeHomeVisit, Label: "Home visit", DefaultDuration: 45 * time.Minute, Color: "#f2994a"},
	{Code: appointment.TypeTeleconsultation, Label: "Teleconsultation", DefaultDuration: 20 * time.Minute, Color: "#9b51e0"},
	{Code: appointment.TypeBlocked, Label: "Blocked time", DefaultDuration: 60 * time.Minute, Color: "#828282"},
}

// FailOn makes the named operation return err (ErrInjected when nil) until
// cleared with Clear.
func (s *Store) FailOn(op string, err error) {
	if err == nil {
		err = ErrInjected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *Store) Clear(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, op)
}

// fail must be called with mu held.
func (s *Store) fail(op string) error {
	return s.failures[op]
}

// id must be called with mu held for writing.
func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) AddProvider(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.st.providers[id] = Provider{ID: id, Name: name}
	return id
}

// Events returns a copy of the recorded audit trail.
func (s *Store) Events() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Store) Appointments() *AppointmentRepo { return &AppointmentRepo{s: s} }
func (s *Store) Absences() *AbsenceRepo         { return &AbsenceRepo{s: s} }
func (s *Store) Patients() *PatientRepo         { return &PatientRepo{s: s} }
func (s *Store) Audit() *AuditSink              { return &AuditSink{s: s} }

// AuditSink implements audit.Sink.
type AuditSink struct{ s *Store }

func (a *AuditSink) Record(_ context.Context, ev audit.Event) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if err := a.s.fail(OpAuditRecord); err != nil {
		return err
	}
	a.s.events = append(a.s.events, ev)
	return nil
}

// AppointmentRepo implements appointment.Repository.
type AppointmentRepo struct{ s *Store }

func (r *AppointmentRepo) PatientExists(_ context.Context, id int64) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.st.patients[id]
	return ok, nil
}

func (r *AppointmentRepo) ProviderExists(_ context.Context, id int64) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.st.providers[id]
	return ok, nil
}

func (r *AppointmentRepo) GetAppointmentByID(_ context.Context, id int64) (*appointment.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.st.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *AppointmentRepo) ListByProvider(_ context.Context, providerID int64, from, to time.Time) ([]appointment.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []appointment.Appointment
	for _, a := range r.s.st.appointments {
		if a.ProviderID == providerID && !a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (r *AppointmentRepo) CountOverlapping(_ context.Context, providerID int64, from, to time.Time) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.fail(OpCountOverlapping); err != nil {
		return 0, err
	}
	n := 0
	for _, a := range r.s.st.appointments {
		if a.ProviderID != providerID || a.Status == appointment.StatusCancelled {
			continue
		}
		if !a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (r *AppointmentRepo) CreateAppointment(_ context.Context, a appointment.Appointment) (*appointment.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpCreateAppointment); err != nil {
		return nil, err
	}
	created := r.s.insertAppointment(r.s.st, a)
	return &created, nil
}

func (s *Store) insertAppointment(st *state, a appointment.Appointment) appointment.Appointment {
	now := s.now().UTC()
	a.ID = s.id()
	a.CreatedAt = now
	a.UpdatedAt = now
	st.appointments[a.ID] = a
	return a
}

func (r *AppointmentRepo) UpdateAppointmentStatus(_ context.Context, id int64, from, to appointment.Status) (*appointment.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.st.appointments[id]
	if !ok || a.Status != from {
		return nil, appointment.ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = r.s.now().UTC()
	r.s.st.appointments[id] = a
	return &a, nil
}

func (r *AppointmentRepo) CreateSeries(_ context.Context, series appointment.Series, occurrences []appointment.Appointment) (*appointment.Series, []appointment.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpCreateSeries); err != nil {
		return nil, nil, err
	}

	series.ID = r.s.id()
	series.CreatedAt = r.s.now().UTC()
	r.s.st.series[series.ID] = series

	created := make([]appointment.Appointment, 0, len(occurrences))
	for _, occ := range occurrences {
		sid := series.ID
		occ.SeriesID = &sid
		created = append(created, r.s.insertAppointment(r.s.st, occ))
	}
	return &series, created, nil
}

func (r *AppointmentRepo) FindStaleOpen(_ context.Context, endedBefore time.Time, limit int) ([]appointment.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []appointment.Appointment
	for _, a := range r.s.st.appointments {
		if a.Status != appointment.StatusToConfirm && a.Status != appointment.StatusConfirmed {
			continue
		}
		if a.EndsAt().Before(endedBefore) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *AppointmentRepo) GetTypeSettings(_ context.Context, code appointment.Type) (*appointment.TypeSettings, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ts, ok := r.s.st.types[code]
	if !ok {
		return nil, appointment.ErrTypeSettingsNotFound
	}
	return &ts, nil
}

func (r *AppointmentRepo) ListTypeSettings(_ context.Context) ([]appointment.TypeSettings, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]appointment.TypeSettings, 0, len(r.s.st.types))
	for _, ts := range r.s.st.types {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *AppointmentRepo) UpsertTypeSettings(_ context.Context, ts appointment.TypeSettings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.types[ts.Code] = ts
	return nil
}

// RemoveTypeSettings drops a code's settings so callers must pass a duration.
func (r *AppointmentRepo) RemoveTypeSettings(code appointment.Type) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.st.types, code)
}

func sortAppointments(list []appointment.Appointment) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].ScheduledAt.Equal(list[j].ScheduledAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].ScheduledAt.Before(list[j].ScheduledAt)
	})
}

// AbsenceRepo implements absence.Repository and appointment.AbsenceCounter.
type AbsenceRepo struct{ s *Store }

func (r *AbsenceRepo) ProviderExists(_ context.Context, id int64) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.st.providers[id]
	return ok, nil
}

func (r *AbsenceRepo) GetAbsenceByID(_ context.Context, id int64) (*absence.Absence, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.st.absences[id]
	if !ok {
		return nil, absence.ErrAbsenceNotFound
	}
	return &a, nil
}

func (r *AbsenceRepo) ListByProvider(_ context.Context, providerID int64, dr calendar.DateRange) ([]absence.Absence, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []absence.Absence
	for _, a := range r.s.st.absences {
		if a.ProviderID != providerID {
			continue
		}
		if !a.StartDate.After(dr.End) && !a.EndDate.Before(dr.Start) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartDate.Before(out[j].StartDate)
	})
	return out, nil
}

func (r *AbsenceRepo) CountAbsencesCovering(_ context.Context, providerID int64, date time.Time) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, a := range r.s.st.absences {
		if a.ProviderID == providerID && a.Range().ContainsDate(date) {
			n++
		}
	}
	return n, nil
}

func (r *AbsenceRepo) CreateAbsence(_ context.Context, a absence.Absence) (*absence.Absence, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpCreateAbsence); err != nil {
		return nil, err
	}
	now := r.s.now().UTC()
	a.ID = r.s.id()
	a.CreatedAt = now
	a.UpdatedAt = now
	r.s.st.absences[a.ID] = a
	return &a, nil
}

func (r *AbsenceRepo) UpdateAbsence(_ context.Context, a absence.Absence) (*absence.Absence, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.st.absences[a.ID]
	if !ok {
		return nil, absence.ErrAbsenceNotFound
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = r.s.now().UTC()
	r.s.st.absences[a.ID] = a
	return &a, nil
}

func (r *AbsenceRepo) DeleteAbsence(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.absences[id]; !ok {
		return absence.ErrAbsenceNotFound
	}
	delete(r.s.st.absences, id)
	return nil
}

// PatientRepo implements patient.Repository.
type PatientRepo struct{ s *Store }

func (r *PatientRepo) GetPatientByID(_ context.Context, id int64) (*patient.Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.st.patients[id]
	if !ok {
		return nil, patient.ErrPatientNotFound
	}
	return &p, nil
}

func (r *PatientRepo) ExistsByNIN(_ context.Context, number string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.st.patients {
		if p.NIN == number {
			return true, nil
		}
	}
	return false, nil
}

func (r *PatientRepo) CreatePatient(_ context.Context, p patient.Patient) (*patient.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpCreatePatient); err != nil {
		return nil, err
	}
	for _, existing := range r.s.st.patients {
		if existing.NIN == p.NIN {
			return nil, patient.ErrDuplicateNIN
		}
	}
	now := r.s.now().UTC()
	p.ID = r.s.id()
	p.CreatedAt = now
	p.UpdatedAt = now
	r.s.st.patients[p.ID] = p
	return &p, nil
}

func (r *PatientRepo) ListAppointmentsByPatient(_ context.Context, patientID int64) ([]appointment.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []appointment.Appointment
	for _, a := range r.s.st.appointments {
		if a.PatientID != nil && *a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (r *PatientRepo) ListSeriesByPatient(_ context.Context, patientID int64) ([]appointment.Series, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []appointment.Series
	for _, s := range r.s.st.series {
		if s.PatientID == patientID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RunInTx serializes transactions. fn mutates a private copy that replaces
// the live state only when fn succeeds.
func (r *PatientRepo) RunInTx(_ context.Context, fn func(tx patient.ErasureTx) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	tx := &erasureTx{s: r.s, st: r.s.st.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	r.s.st = tx.st
	return nil
}

type erasureTx struct {
	s  *Store
	st *state
}

func (t *erasureTx) LockPatient(_ context.Context, id int64) error {
	if err := t.s.fail(OpLockPatient); err != nil {
		return err
	}
	if _, ok := t.st.patients[id]; !ok {
		return patient.ErrPatientNotFound
	}
	return nil
}

func (t *erasureTx) DetachAppointments(_ context.Context, patientID int64) (int, error) {
	if err := t.s.fail(OpDetachAppointments); err != nil {
		return 0, err
	}
	n := 0
	for id, a := range t.st.appointments {
		if a.PatientID != nil && *a.PatientID == patientID {
			a.PatientID = nil
			t.st.appointments[id] = a
			n++
		}
	}
	return n, nil
}

func (t *erasureTx) DeleteRecurrenceSeries(_ context.Context, patientID int64) (int, error) {
	if err := t.s.fail(OpDeleteRecurrenceSeries); err != nil {
		return 0, err
	}
	n := 0
	for id, s := range t.st.series {
		if s.PatientID != patientID {
			continue
		}
		delete(t.st.series, id)
		n++
		for aid, a := range t.st.appointments {
			if a.SeriesID != nil && *a.SeriesID == id {
				a.SeriesID = nil
				t.st.appointments[aid] = a
			}
		}
	}
	return n, nil
}

func (t *erasureTx) DeletePatient(_ context.Context, id int64) error {
	if err := t.s.fail(OpDeletePatient); err != nil {
		return err
	}
	if _, ok := t.st.patients[id]; !ok {
		return patient.ErrPatientNotFound
	}
	delete(t.st.patients, id)
	return nil
}
