// Package embedding persists one reference face embedding per student.
package embedding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/biometric"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/embedding/repo"
)

var (
	// ErrNoReference means the student has not enrolled a face yet.
	ErrNoReference    = apperr.New(apperr.KindNotEnrolled, "no face enrolled for this student")
	ErrStudentMissing = apperr.New(apperr.KindNotFound, "student not found")
)

// Store is the embedding store. Writes replace the whole vector.
type Store struct {
	repo *repo.Repo
	dim  int
}

func NewStore(db *sqlx.DB, dim int) *Store {
	if dim <= 0 {
		dim = biometric.DefaultDimension
	}
	return &Store{repo: repo.NewRepo(db), dim: dim}
}

// Dimension is the configured embedding length.
func (s *Store) Dimension() int { return s.dim }

// SetReference stores e as the student's reference, replacing any previous one.
func (s *Store) SetReference(ctx context.Context, studentID int64, e biometric.Embedding) error {
	if err := e.Validate(s.dim); err != nil {
		return err
	}
	ok, err := s.repo.Set(ctx, studentID, biometric.Encode(e))
	if err != nil {
		return fmt.Errorf("store reference: %w", err)
	}
	if !ok {
		return ErrStudentMissing
	}
	return nil
}

// GetReference returns the student's reference or ErrNoReference.
func (s *Store) GetReference(ctx context.Context, studentID int64) (biometric.Embedding, error) {
	blob, err := s.repo.Get(ctx, studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoReference
	}
	if err != nil {
		return nil, fmt.Errorf("load reference: %w", err)
	}
	if blob == nil {
		return nil, ErrNoReference
	}
	e, err := biometric.Decode(blob, s.dim)
	if err != nil {
		// a stored blob that no longer decodes is corrupt data, not bad input
		return nil, fmt.Errorf("decode reference of student %d: %v", studentID, err)
	}
	return e, nil
}

// ClearReference removes the student's reference.
func (s *Store) ClearReference(ctx context.Context, studentID int64) error {
	return s.repo.Clear(ctx, studentID)
}

// AllReferences streams every stored reference ordered by student id.
// Each call runs a fresh query; a query or decode failure is yielded once
// as the final element.
func (s *Store) AllReferences(ctx context.Context) iter.Seq2[biometric.Candidate, error] {
	return func(yield func(biometric.Candidate, error) bool) {
		rows, err := s.repo.Scan(ctx)
		if err != nil {
			yield(biometric.Candidate{}, fmt.Errorf("scan references: %w", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			var row repo.Row
			if err := rows.StructScan(&row); err != nil {
				yield(biometric.Candidate{}, fmt.Errorf("scan reference row: %w", err))
				return
			}
			e, err := biometric.Decode(row.Blob, s.dim)
			if err != nil {
				yield(biometric.Candidate{}, fmt.Errorf("decode reference of student %d: %v", row.StudentID, err))
				return
			}
			if !yield(biometric.Candidate{StudentID: row.StudentID, Embedding: e}, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(biometric.Candidate{}, fmt.Errorf("iterate references: %w", err))
		}
	}
}

// Candidates adapts a fallible reference stream to the engine's input.
// Iteration stops at the first error, which is stored in *errp.
func Candidates(refs iter.Seq2[biometric.Candidate, error], errp *error) iter.Seq[biometric.Candidate] {
	return func(yield func(biometric.Candidate) bool) {
		for c, err := range refs {
			if err != nil {
				*errp = err
				return
			}
			if !yield(c) {
				return
			}
		}
	}
}
