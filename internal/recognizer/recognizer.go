// Package recognizer is the entry point for enrolling and identifying
// faces. It is the only path through which the face store is mutated.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kozaktomas/face-id/internal/constants"
	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/kozaktomas/face-id/internal/facestore"
)

var (
	// ErrNoFaceFound is returned when the extractor finds no face in an image.
	ErrNoFaceFound = errors.New("no face detected in image")

	// ErrNoExtractor is returned by image operations when no extractor is configured.
	ErrNoExtractor = errors.New("no embedding extractor configured")
)

// Extractor turns an image into face embeddings, one per detected face in
// detector order. An image without faces yields an empty slice.
type Extractor interface {
	ExtractFaces(ctx context.Context, image []byte) ([][]float32, error)
}

// Observer receives timings and outcomes of recognizer operations.
type Observer interface {
	OnEnroll(d time.Duration, err error)
	OnIdentify(d time.Duration, identified bool, err error)
	OnRemove(d time.Duration, err error)
	OnClear(d time.Duration, err error)
	OnStoreSize(n int)
}

type noopObserver struct{}

func (noopObserver) OnEnroll(time.Duration, error)         {}
func (noopObserver) OnIdentify(time.Duration, bool, error) {}
func (noopObserver) OnRemove(time.Duration, error)         {}
func (noopObserver) OnClear(time.Duration, error)          {}
func (noopObserver) OnStoreSize(int)                       {}

// Entry is the listing view of a record; embeddings are not exposed.
type Entry struct {
	UserID   facestore.UserID   `json:"user_id"`
	Metadata facestore.Metadata `json:"metadata"`
}

// Options configures a Recognizer.
type Options struct {
	Extractor Extractor
	Observer  Observer
	Logger    *slog.Logger
	// Tolerance used when callers do not supply one.
	Tolerance float64
	Match     facematch.Options
}

// Recognizer coordinates the store, the match engine and the extractor.
type Recognizer struct {
	store     *facestore.Store
	engine    *facematch.Engine
	extractor Extractor
	observer  Observer
	logger    *slog.Logger
	tolerance float64
}

// New creates a recognizer over a loaded store.
func New(store *facestore.Store, opts Options) *Recognizer {
	r := &Recognizer{
		store:     store,
		engine:    facematch.NewEngine(store, opts.Match),
		extractor: opts.Extractor,
		observer:  opts.Observer,
		logger:    opts.Logger,
		tolerance: opts.Tolerance,
	}
	if r.observer == nil {
		r.observer = noopObserver{}
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.tolerance <= 0 {
		r.tolerance = constants.DefaultTolerance
	}
	r.observer.OnStoreSize(store.Len())
	return r
}

// DefaultTolerance returns the tolerance applied when none is given.
func (r *Recognizer) DefaultTolerance() float64 {
	return r.tolerance
}

// Count returns the number of enrolled users.
func (r *Recognizer) Count() int {
	return r.store.Len()
}

// Enroll stores embedding and metadata under userID, replacing any
// previous enrollment of that user.
func (r *Recognizer) Enroll(userID facestore.UserID, embedding []float32, metadata facestore.Metadata) (facestore.Record, error) {
	start := time.Now()
	rec, err := r.enroll(userID, embedding, metadata)
	r.observer.OnEnroll(time.Since(start), err)
	return rec, err
}

func (r *Recognizer) enroll(userID facestore.UserID, embedding []float32, metadata facestore.Metadata) (facestore.Record, error) {
	id, err := facestore.ParseUserID(string(userID))
	if err != nil {
		return facestore.Record{}, err
	}
	rec := facestore.Record{UserID: id, Embedding: embedding, Metadata: metadata.Clone()}
	replaced, err := r.store.Put(rec)
	if err != nil {
		return facestore.Record{}, fmt.Errorf("enrolling user %s: %w", id, err)
	}
	r.observer.OnStoreSize(r.store.Len())
	r.logger.Info("enrolled face", "user_id", id, "replaced", replaced)
	return rec.Clone(), nil
}

// EnrollImage extracts the first face of image and enrolls it.
func (r *Recognizer) EnrollImage(ctx context.Context, userID facestore.UserID, image []byte, metadata facestore.Metadata) (facestore.Record, error) {
	embedding, err := r.ExtractFirst(ctx, image)
	if err != nil {
		r.observer.OnEnroll(0, err)
		return facestore.Record{}, err
	}
	return r.Enroll(userID, embedding, metadata)
}

// Identify returns the closest enrolled user within tolerance, or nil.
func (r *Recognizer) Identify(embedding []float32, tolerance float64) (*facematch.Match, error) {
	start := time.Now()
	m, err := r.engine.Identify(embedding, tolerance)
	r.observer.OnIdentify(time.Since(start), m != nil, err)
	if err != nil {
		return nil, fmt.Errorf("identifying face: %w", err)
	}
	if m != nil {
		r.logger.Debug("face identified", "user_id", m.UserID, "distance", m.Distance)
	}
	return m, nil
}

// IdentifyImage extracts the first face of image and identifies it.
func (r *Recognizer) IdentifyImage(ctx context.Context, image []byte, tolerance float64) (*facematch.Match, error) {
	embedding, err := r.ExtractFirst(ctx, image)
	if err != nil {
		r.observer.OnIdentify(0, false, err)
		return nil, err
	}
	return r.Identify(embedding, tolerance)
}

// Nearest ranks the k closest enrolled users regardless of tolerance.
func (r *Recognizer) Nearest(embedding []float32, k int) ([]facematch.Candidate, error) {
	c, err := r.engine.Nearest(embedding, k)
	if err != nil {
		return nil, fmt.Errorf("ranking candidates: %w", err)
	}
	return c, nil
}

// ExtractFirst returns the embedding of the first face the extractor
// reports. Additional faces are ignored.
func (r *Recognizer) ExtractFirst(ctx context.Context, image []byte) ([]float32, error) {
	if r.extractor == nil {
		return nil, ErrNoExtractor
	}
	faces, err := r.extractor.ExtractFaces(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("extracting faces: %w", err)
	}
	if len(faces) == 0 {
		return nil, ErrNoFaceFound
	}
	if len(faces) > 1 {
		r.logger.Info("multiple faces detected, using the first one", "faces", len(faces))
	}
	return faces[0], nil
}

// List returns enrolled users in user ID order, filtered by query (see
// matchesQuery). An empty query lists everyone.
func (r *Recognizer) List(query string) ([]Entry, error) {
	records, err := r.store.All()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(records))
	for _, rec := range records {
		if !matchesQuery(rec.UserID, rec.Metadata, query) {
			continue
		}
		out = append(out, Entry{UserID: rec.UserID, Metadata: rec.Metadata.Clone()})
	}
	return out, nil
}

// Remove deletes userID. It returns facestore.ErrNotFound when the user
// is not enrolled.
func (r *Recognizer) Remove(userID facestore.UserID) error {
	start := time.Now()
	err := r.store.Remove(userID)
	r.observer.OnRemove(time.Since(start), err)
	if err != nil {
		return fmt.Errorf("removing user %s: %w", userID, err)
	}
	r.observer.OnStoreSize(r.store.Len())
	r.logger.Info("removed face", "user_id", userID)
	return nil
}

// Clear removes every enrolled user. It cannot be undone.
func (r *Recognizer) Clear() error {
	start := time.Now()
	err := r.store.Clear()
	r.observer.OnClear(time.Since(start), err)
	if err != nil {
		return fmt.Errorf("clearing store: %w", err)
	}
	r.observer.OnStoreSize(0)
	r.logger.Warn("face store cleared")
	return nil
}
