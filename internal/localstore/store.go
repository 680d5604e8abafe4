// Package localstore persists the practitioner's working copy of records and
// patients in Redis so capture keeps working while the hosted database is
// unreachable.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/practice-records/internal/ledger"
	"github.com/wolfman30/practice-records/internal/records"
	"github.com/wolfman30/practice-records/pkg/logging"
)

const maxTxRetries = 3

// ErrConflict is returned when a concurrent writer kept winning the
// optimistic transaction.
var ErrConflict = errors.New("localstore: concurrent modification")

// Store reads and writes the ledger state under two keys.
type Store struct {
	redis       *redis.Client
	recordsKey  string
	patientsKey string
	tracer      trace.Tracer
	logger      *logging.Logger
}

// New builds a store over client using keys under prefix.
func New(client *redis.Client, prefix string, logger *logging.Logger) *Store {
	if client == nil {
		panic("localstore: redis client cannot be nil")
	}
	if prefix == "" {
		prefix = "practice"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		redis:       client,
		recordsKey:  prefix + ":patientRecords",
		patientsKey: prefix + ":patientsDatabase",
		tracer:      otel.Tracer("practice.internal.localstore"),
		logger:      logger,
	}
}

// Load returns the persisted state. Missing keys read as empty collections;
// an unreadable value is logged and treated as empty.
func (s *Store) Load(ctx context.Context) (ledger.State, error) {
	ctx, span := s.tracer.Start(ctx, "localstore.load")
	defer span.End()

	state, err := s.load(ctx, s.redis)
	if err != nil {
		span.RecordError(err)
	}
	return state, err
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Store) load(ctx context.Context, db getter) (ledger.State, error) {
	state := ledger.Empty()

	raw, err := db.Get(ctx, s.recordsKey).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return state, fmt.Errorf("localstore: failed to load records: %w", err)
	default:
		var recs []records.Record
		if err := json.Unmarshal(raw, &recs); err != nil {
			s.logger.Warn("discarding unreadable local records", "error", err, "key", s.recordsKey)
		} else if recs != nil {
			state.Records = recs
		}
	}

	raw, err = db.Get(ctx, s.patientsKey).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return state, fmt.Errorf("localstore: failed to load patients: %w", err)
	default:
		var patients map[string]records.Patient
		if err := json.Unmarshal(raw, &patients); err != nil {
			s.logger.Warn("discarding unreadable local patients", "error", err, "key", s.patientsKey)
		} else if patients != nil {
			state.Patients = patients
		}
	}
	return state, nil
}

// Save overwrites both collections atomically.
func (s *Store) Save(ctx context.Context, state ledger.State) error {
	ctx, span := s.tracer.Start(ctx, "localstore.save")
	defer span.End()

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return s.write(ctx, pipe, state)
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("localstore: failed to save: %w", err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, pipe redis.Pipeliner, state ledger.State) error {
	recs := state.Records
	if recs == nil {
		recs = []records.Record{}
	}
	patients := state.Patients
	if patients == nil {
		patients = map[string]records.Patient{}
	}
	recData, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("localstore: failed to marshal records: %w", err)
	}
	patData, err := json.Marshal(patients)
	if err != nil {
		return fmt.Errorf("localstore: failed to marshal patients: %w", err)
	}
	pipe.Set(ctx, s.recordsKey, recData, 0)
	pipe.Set(ctx, s.patientsKey, patData, 0)
	return nil
}

// Dispatch applies action to the stored state inside a WATCH transaction and
// returns the resulting state.
func (s *Store) Dispatch(ctx context.Context, action ledger.Action) (ledger.State, ledger.Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "localstore.dispatch")
	defer span.End()

	var (
		next    ledger.State
		outcome ledger.Outcome
	)
	txf := func(tx *redis.Tx) error {
		current, err := s.load(ctx, tx)
		if err != nil {
			return err
		}
		next, outcome, err = ledger.Reduce(current, action)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.write(ctx, pipe, next)
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, txf, s.recordsKey, s.patientsKey)
		if err == nil {
			return next, outcome, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		span.RecordError(err)
		return ledger.State{}, ledger.Outcome{}, err
	}
	span.RecordError(ErrConflict)
	return ledger.State{}, ledger.Outcome{}, ErrConflict
}

// List returns the records matching filter in stored order.
func (s *Store) List(ctx context.Context, filter records.Filter) ([]records.Record, error) {
	state, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return filter.Apply(state.Records), nil
}

// Get returns one record.
func (s *Store) Get(ctx context.Context, id int64) (records.Record, error) {
	state, err := s.Load(ctx)
	if err != nil {
		return records.Record{}, err
	}
	rec, ok := state.Find(id)
	if !ok {
		return records.Record{}, records.ErrRecordNotFound
	}
	return rec, nil
}

// Patients returns the stored patient collection.
func (s *Store) Patients(ctx context.Context) (map[string]records.Patient, error) {
	state, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return state.Patients, nil
}

// Upsert adds rec, or replaces the stored record with the same id.
func (s *Store) Upsert(ctx context.Context, rec records.Record) error {
	_, _, err := s.Dispatch(ctx, ledger.UpdateRecord{Record: rec})
	if errors.Is(err, records.ErrRecordNotFound) {
		_, _, err = s.Dispatch(ctx, ledger.AddRecord{Record: rec})
	}
	return err
}

// Delete removes the record with id and reports whether it existed.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	_, outcome, err := s.Dispatch(ctx, ledger.DeleteRecord{ID: id})
	if err != nil {
		return false, err
	}
	return outcome.Deleted, nil
}

// Stats summarises the stored data.
type Stats struct {
	Records  int   `json:"records"`
	Patients int   `json:"patients"`
	Bytes    int64 `json:"bytes"`
}

// Stats reports collection sizes and the serialized footprint.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	state, err := s.Load(ctx)
	if err != nil {
		return Stats{}, err
	}
	var size int64
	for _, key := range []string{s.recordsKey, s.patientsKey} {
		n, err := s.redis.StrLen(ctx, key).Result()
		if err != nil {
			return Stats{}, fmt.Errorf("localstore: failed to size %s: %w", key, err)
		}
		size += n
	}
	return Stats{Records: len(state.Records), Patients: len(state.Patients), Bytes: size}, nil
}
