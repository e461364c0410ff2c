// Package importer enrolls users in bulk from rows of an SQL query.
package importer

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-id/internal/constants"
	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/facestore"
	"github.com/kozaktomas/face-id/internal/recognizer"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Enroller is the part of the recognizer used by imports.
type Enroller interface {
	Enroll(userID facestore.UserID, embedding []float32, metadata facestore.Metadata) (facestore.Record, error)
	EnrollImage(ctx context.Context, userID facestore.UserID, image []byte, metadata facestore.Metadata) (facestore.Record, error)
}

// RowSource streams import rows for a query.
type RowSource interface {
	EachRow(ctx context.Context, query string, fn func(database.Row) error) error
}

// Options configures an Importer.
type Options struct {
	// Concurrency is the number of rows processed in parallel.
	Concurrency int
	// RateLimit caps image downloads per second; 0 means unlimited.
	RateLimit float64
	// DownloadTimeout bounds a single image download.
	DownloadTimeout time.Duration
	HTTPClient      *http.Client
	Logger          *slog.Logger
	// Progress is called after every processed row, possibly from
	// several goroutines at once.
	Progress func(Progress)
}

// Progress is a running tally passed to Options.Progress.
type Progress struct {
	Processed int
	Added     int
	Failed    int
	Skipped   int
}

// Failure describes one row that was not enrolled.
type Failure struct {
	Row    int    `json:"row"`
	UserID string `json:"user_id,omitempty"`
	Error  string `json:"error"`
}

// Report summarizes an import run.
type Report struct {
	RunID    string    `json:"run_id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Total    int       `json:"total"`
	Added    int       `json:"added"`
	Failed   int       `json:"failed"`
	// Skipped counts rows whose image contained no face.
	Skipped  int       `json:"skipped"`
	Failures []Failure `json:"failures"`
}

// Importer runs bulk enrollments.
type Importer struct {
	enroller    Enroller
	concurrency int
	limiter     *rate.Limiter
	timeout     time.Duration
	client      *http.Client
	logger      *slog.Logger
	progress    func(Progress)
}

// New creates an importer that enrolls through enroller.
func New(enroller Enroller, opts Options) *Importer {
	im := &Importer{
		enroller:    enroller,
		concurrency: opts.Concurrency,
		limiter:     rate.NewLimiter(rate.Inf, 1),
		timeout:     opts.DownloadTimeout,
		client:      opts.HTTPClient,
		logger:      opts.Logger,
		progress:    opts.Progress,
	}
	if im.concurrency <= 0 {
		im.concurrency = constants.DefaultImportConcurrency
	}
	if opts.RateLimit > 0 {
		im.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	if im.timeout <= 0 {
		im.timeout = constants.DownloadTimeoutSeconds * time.Second
	}
	if im.client == nil {
		im.client = &http.Client{}
	}
	if im.logger == nil {
		im.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return im
}

type run struct {
	mu     sync.Mutex
	report *Report
}

func (r *run) record(row database.Row, err error) Progress {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep := r.report
	rep.Total++
	switch {
	case err == nil:
		rep.Added++
	case errors.Is(err, recognizer.ErrNoFaceFound):
		rep.Skipped++
	default:
		rep.Failed++
		rep.Failures = append(rep.Failures, Failure{Row: row.Index, UserID: row.UserID, Error: err.Error()})
	}
	return Progress{Processed: rep.Total, Added: rep.Added, Failed: rep.Failed, Skipped: rep.Skipped}
}

// Run executes query against src and enrolls every row. Per-row problems
// are recorded in the report; only query failures and cancellation abort
// the run.
func (im *Importer) Run(ctx context.Context, src RowSource, query string) (*Report, error) {
	r := &run{report: &Report{RunID: uuid.NewString(), Started: time.Now(), Failures: []Failure{}}}
	logger := im.logger.With("run_id", r.report.RunID)
	logger.Info("starting import")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.concurrency)

	err := src.EachRow(gctx, query, func(row database.Row) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		g.Go(func() error {
			err := im.importRow(gctx, row)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn("skipping row", "row", row.Index, "user_id", row.UserID, "error", err)
			}
			p := r.record(row, err)
			if im.progress != nil {
				im.progress(p)
			}
			return nil
		})
		return nil
	})
	waitErr := g.Wait()
	if err == nil {
		err = waitErr
	}

	rep := r.report
	rep.Finished = time.Now()
	slices.SortFunc(rep.Failures, func(a, b Failure) int { return cmp.Compare(a.Row, b.Row) })
	if err != nil {
		return rep, fmt.Errorf("import %s: %w", rep.RunID, err)
	}

	logger.Info("import finished", "added", rep.Added, "failed", rep.Failed, "skipped", rep.Skipped,
		"duration", rep.Finished.Sub(rep.Started).Round(time.Millisecond))
	return rep, nil
}

func (im *Importer) importRow(ctx context.Context, row database.Row) error {
	if row.Err != nil {
		return row.Err
	}
	id := facestore.UserID(row.UserID)
	meta := facestore.Metadata(row.Metadata)

	if row.Embedding != nil {
		_, err := im.enroller.Enroll(id, row.Embedding, meta)
		return err
	}

	image, err := im.fetchImage(ctx, row.ImageURL)
	if err != nil {
		return err
	}
	_, err = im.enroller.EnrollImage(ctx, id, image, meta)
	return err
}

// fetchImage downloads http(s) references and reads anything else from
// the local filesystem.
func (im *Importer) fetchImage(ctx context.Context, ref string) ([]byte, error) {
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		return readLocalImage(strings.TrimPrefix(ref, "file://"))
	}

	if err := im.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, im.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image URL: %w", err)
	}
	resp, err := im.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading image: unexpected status %d", resp.StatusCode)
	}
	return readLimited(resp.Body)
}

func readLocalImage(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()
	return readLimited(f)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, constants.MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if len(data) > constants.MaxUploadSize {
		return nil, fmt.Errorf("image exceeds %d bytes", constants.MaxUploadSize)
	}
	if len(data) == 0 {
		return nil, errors.New("image is empty")
	}
	return data, nil
}
