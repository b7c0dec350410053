// Package join turns a face match into an attendance record. It owns the
// ordered checks of a join attempt and the read-only 1:N identification
// path.
package join

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance"
	attendanceentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/biometric"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/embedding"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/session"
	sessionentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/telemetry"
)

type Config struct {
	Tolerance      float64       `env:"FACE_TOLERANCE" envDefault:"0.5"`
	RequestTimeout time.Duration `env:"JOIN_REQUEST_TIMEOUT" envDefault:"30s"`
	ExtractTimeout time.Duration `env:"EXTRACTOR_TIMEOUT" envDefault:"10s"`
}

func ConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil || cfg.Tolerance <= 0 {
		return DefaultConfig()
	}
	return cfg
}

func DefaultConfig() Config {
	return Config{Tolerance: biometric.DefaultTolerance, RequestTimeout: 30 * time.Second, ExtractTimeout: 10 * time.Second}
}

// References is the embedding store as seen by the orchestrator.
type References interface {
	GetReference(ctx context.Context, studentID int64) (biometric.Embedding, error)
	SetReference(ctx context.Context, studentID int64, e biometric.Embedding) error
	ClearReference(ctx context.Context, studentID int64) error
	AllReferences(ctx context.Context) iter.Seq2[biometric.Candidate, error]
	Dimension() int
}

type Sessions interface {
	Get(ctx context.Context, sessionID int64) (*sessionentity.Session, error)
}

type Enrollments interface {
	IsEnrolled(ctx context.Context, studentID, courseID int64) (bool, error)
}

type Ledger interface {
	Exists(ctx context.Context, sessionID, studentID int64) (bool, error)
	Record(ctx context.Context, sessionID, studentID int64, verified bool) (*attendanceentity.Record, error)
}

type Directory interface {
	DisplayName(ctx context.Context, userID int64) (string, error)
}

var (
	ErrFaceMismatch  = apperr.New(apperr.KindFaceMismatch, "face does not match the enrolled reference")
	ErrNotEnrolled   = apperr.New(apperr.KindNotEnrolled, "not enrolled in this course")
	ErrImageRequired = apperr.New(apperr.KindInvalidRequest, "an image or an embedding is required")
)

// Probe is the face presented by the caller: a raw image for the
// extractor, or an embedding that was already extracted.
type Probe struct {
	Image     []byte
	Embedding biometric.Embedding

	// err is a request-body failure held back until the probe is used.
	err error
}

type JoinResult struct {
	RecordID   int64     `json:"record_id"`
	SessionID  int64     `json:"session_id"`
	CourseID   int64     `json:"course_id"`
	Distance   float64   `json:"distance"`
	Confidence float64   `json:"confidence"`
	JoinedAt   time.Time `json:"joined_at"`
	Message    string    `json:"message"`
}

type VerifyResult struct {
	Match      bool    `json:"match"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}

type IdentifyResult struct {
	Recognized  bool    `json:"recognized"`
	StudentID   int64   `json:"student_id,omitempty"`
	StudentName string  `json:"student_name,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// Orchestrator coordinates the store, session manager, ledger and engine.
// It holds no per-session state.
type Orchestrator struct {
	cfg         Config
	refs        References
	sessions    Sessions
	enrollments Enrollments
	ledger      Ledger
	directory   Directory
	extractor   biometric.Extractor
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	logger      *zap.SugaredLogger
}

type Deps struct {
	References  References
	Sessions    Sessions
	Enrollments Enrollments
	Ledger      Ledger
	Directory   Directory
	Extractor   biometric.Extractor
	Metrics     *metrics.Metrics
	Logger      *zap.SugaredLogger
}

func NewOrchestrator(cfg Config, d Deps) *Orchestrator {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = biometric.DefaultTolerance
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Orchestrator{
		cfg:         cfg,
		refs:        d.References,
		sessions:    d.Sessions,
		enrollments: d.Enrollments,
		ledger:      d.Ledger,
		directory:   d.Directory,
		extractor:   d.Extractor,
		metrics:     d.Metrics,
		tracer:      telemetry.Tracer("attendance/join"),
		logger:      logger,
	}
}

// AttemptJoin records the student's attendance if, in this order: the
// student has a reference face, the session exists and is open, the
// student is enrolled in its course, has not joined yet, the probe yields
// exactly one face, and that face matches the reference. The first
// failing check decides the error. Nothing is written on failure.
func (o *Orchestrator) AttemptJoin(ctx context.Context, sessionID, studentID int64, probe Probe) (res *JoinResult, err error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "join.AttemptJoin", trace.WithAttributes(
		attribute.Int64("session.id", sessionID),
		attribute.Int64("student.id", studentID),
	))
	defer func() {
		o.finish(span, err)
		outcome := "joined"
		if err != nil {
			outcome = apperr.KindOf(err).String()
		}
		o.metrics.JoinAttempt(outcome)
	}()

	ref, err := o.refs.GetReference(ctx, studentID)
	if err != nil {
		return nil, err
	}
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsOpen() {
		return nil, session.ErrSessionNotActive
	}
	enrolled, err := o.enrollments.IsEnrolled(ctx, studentID, sess.CourseID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}
	joined, err := o.ledger.Exists(ctx, sessionID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check attendance: %w", err)
	}
	if joined {
		return nil, attendance.ErrAlreadyJoined
	}
	emb, err := o.resolve(ctx, probe)
	if err != nil {
		return nil, err
	}
	ok, dist := biometric.Verify(ref, emb, o.cfg.Tolerance)
	span.SetAttributes(attribute.Float64("face.distance", dist))
	if !ok {
		o.logger.Infow("face mismatch", "session_id", sessionID, "student_id", studentID, "distance", dist)
		return nil, ErrFaceMismatch
	}
	rec, err := o.ledger.Record(ctx, sessionID, studentID, true)
	if err != nil {
		return nil, err
	}
	o.logger.Infow("attendance recorded", "session_id", sessionID, "student_id", studentID, "record_id", rec.ID, "distance", dist)
	return &JoinResult{
		RecordID:   rec.ID,
		SessionID:  sessionID,
		CourseID:   sess.CourseID,
		Distance:   dist,
		Confidence: biometric.Confidence(dist),
		JoinedAt:   rec.JoinedAt,
		Message:    "attendance recorded",
	}, nil
}

// VerifyFace compares a probe with the student's reference without
// recording anything.
func (o *Orchestrator) VerifyFace(ctx context.Context, studentID int64, probe Probe) (res *VerifyResult, err error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "join.VerifyFace", trace.WithAttributes(attribute.Int64("student.id", studentID)))
	defer func() { o.finish(span, err) }()

	ref, err := o.refs.GetReference(ctx, studentID)
	if err != nil {
		return nil, err
	}
	emb, err := o.resolve(ctx, probe)
	if err != nil {
		return nil, err
	}
	ok, dist := biometric.Verify(ref, emb, o.cfg.Tolerance)
	return &VerifyResult{Match: ok, Distance: dist, Confidence: biometric.Confidence(dist)}, nil
}

// Identify finds the closest enrolled student to the probe. It never
// writes and does not depend on any session.
func (o *Orchestrator) Identify(ctx context.Context, probe Probe) (res *IdentifyResult, err error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "join.Identify")
	defer func() {
		o.finish(span, err)
		if err == nil {
			o.metrics.Identify(res.Recognized)
		}
	}()

	emb, err := o.resolve(ctx, probe)
	if err != nil {
		return nil, err
	}
	var scanErr error
	m := biometric.Identify(embedding.Candidates(o.refs.AllReferences(ctx), &scanErr), emb, o.cfg.Tolerance)
	if scanErr != nil {
		return nil, scanErr
	}
	if !m.Found {
		return &IdentifyResult{Recognized: false}, nil
	}
	name, err := o.directory.DisplayName(ctx, m.StudentID)
	if err != nil {
		return nil, fmt.Errorf("load student name: %w", err)
	}
	return &IdentifyResult{
		Recognized:  true,
		StudentID:   m.StudentID,
		StudentName: name,
		Confidence:  biometric.Confidence(m.Distance),
	}, nil
}

// EnrollFace stores the probe as the student's reference, replacing any
// earlier one.
func (o *Orchestrator) EnrollFace(ctx context.Context, studentID int64, probe Probe) (err error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "join.EnrollFace", trace.WithAttributes(attribute.Int64("student.id", studentID)))
	defer func() { o.finish(span, err) }()

	emb, err := o.resolve(ctx, probe)
	if err != nil {
		return err
	}
	if err := o.refs.SetReference(ctx, studentID, emb); err != nil {
		return err
	}
	o.logger.Infow("face enrolled", "student_id", studentID)
	return nil
}

// ForgetFace deletes the student's reference. Later joins fail with
// NotEnrolled until a new face is enrolled.
func (o *Orchestrator) ForgetFace(ctx context.Context, studentID int64) error {
	if err := o.refs.ClearReference(ctx, studentID); err != nil {
		return fmt.Errorf("clear reference: %w", err)
	}
	o.logger.Infow("face removed", "student_id", studentID)
	return nil
}

// resolve turns a probe into an embedding of the store's dimension.
func (o *Orchestrator) resolve(ctx context.Context, p Probe) (biometric.Embedding, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.Embedding != nil {
		if err := p.Embedding.Validate(o.refs.Dimension()); err != nil {
			return nil, err
		}
		return p.Embedding, nil
	}
	if len(p.Image) == 0 {
		return nil, ErrImageRequired
	}
	if o.extractor == nil {
		return nil, fmt.Errorf("%w: no extractor configured", biometric.ErrExtractionFailed)
	}
	xctx := ctx
	if o.cfg.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		xctx, cancel = context.WithTimeout(ctx, o.cfg.ExtractTimeout)
		defer cancel()
	}
	start := time.Now()
	emb, err := o.extractor.Extract(xctx, p.Image)
	o.metrics.Extraction(extractionOutcome(err), time.Since(start))
	if err != nil {
		// a timed-out or failed extractor is never reported as a mismatch
		if errors.Is(err, biometric.ErrExtractionFailed) {
			return nil, err
		}
		if biometric.IsExtractionFailure(err) || apperr.KindOf(err) == apperr.KindInternal {
			return nil, fmt.Errorf("%w: %v", biometric.ErrExtractionFailed, err)
		}
		return nil, err
	}
	if err := emb.Validate(o.refs.Dimension()); err != nil {
		return nil, err
	}
	return emb, nil
}

func extractionOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.KindOf(err).String()
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.cfg.RequestTimeout)
}

func (o *Orchestrator) finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.KindOf(err).String())
	}
	span.End()
}
