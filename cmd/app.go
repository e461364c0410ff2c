package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/constants"
	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/embedding"
	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/kozaktomas/face-id/internal/facestore"
	"github.com/kozaktomas/face-id/internal/importer"
	"github.com/kozaktomas/face-id/internal/logging"
	"github.com/kozaktomas/face-id/internal/metrics"
	"github.com/kozaktomas/face-id/internal/recognizer"
	"github.com/prometheus/client_golang/prometheus"
)

// app bundles the components every command needs.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *facestore.Store
	recognizer *recognizer.Recognizer
	registry   *prometheus.Registry
	observer   *metrics.Observer
}

// newApp loads configuration and the face store. Metrics are only
// collected when withMetrics is set and METRICS_ENABLED allows it. A
// writable app owns the store file until close; readOnly commands can run
// next to a server that owns it.
func newApp(withMetrics, readOnly bool) (*app, error) {
	cfg := config.Load()
	if storePath != "" {
		cfg.Store.Path = storePath
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	index, err := facematch.ParseIndexKind(cfg.Match.Index)
	if err != nil {
		return nil, err
	}

	store := facestore.New(facestore.Options{
		Path:      cfg.Store.Path,
		Dimension: cfg.Embedding.Dim,
		Compress:  cfg.Store.Compress,
		ReadOnly:  readOnly,
		Logger:    logger,
	})
	if err := store.Load(); err != nil {
		if errors.Is(err, facestore.ErrLocked) {
			return nil, fmt.Errorf("%w (stop the running server or point --store elsewhere)", err)
		}
		return nil, fmt.Errorf("failed to load face store: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: store}

	opts := recognizer.Options{
		Extractor: embedding.NewClient(cfg.Embedding.URL, cfg.Defaults.Image.MaxSize, cfg.Embedding.Timeout),
		Logger:    logger,
		Tolerance: cfg.Match.Tolerance,
		Match: facematch.Options{
			Index:        index,
			MaxNeighbors: cfg.Defaults.HNSW.MaxNeighbors,
			EfSearch:     cfg.Defaults.HNSW.EfSearch,
			Candidates:   cfg.Defaults.HNSW.Candidates,
			MinRecords:   cfg.Defaults.HNSW.MinRecords,
		},
	}
	if withMetrics && cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.observer = metrics.NewObserver(a.registry)
		opts.Observer = a.observer
	}
	a.recognizer = recognizer.New(store, opts)

	return a, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("releasing face store", "error", err)
	}
}

// importSettings selects the source of a bulk import.
type importSettings struct {
	driver      string
	dsn         string
	query       string
	concurrency int
	progress    func(importer.Progress)
}

// runImport connects to the source database and enrolls every row.
func (a *app) runImport(ctx context.Context, s importSettings) (*importer.Report, error) {
	if s.dsn == "" || s.query == "" {
		return nil, errors.New("IMPORT_DSN and IMPORT_QUERY (or --dsn and --query) are required")
	}
	driver, err := database.ParseDriver(s.driver)
	if err != nil {
		return nil, err
	}

	pool, err := database.Open(ctx, driver, s.dsn)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	im := importer.New(a.recognizer, importer.Options{
		Concurrency:     s.concurrency,
		RateLimit:       a.cfg.Import.RateLimit,
		DownloadTimeout: constants.DownloadTimeoutSeconds * time.Second,
		Logger:          a.logger,
		Progress:        s.progress,
	})
	report, err := im.Run(ctx, pool, s.query)
	if a.observer != nil && report != nil {
		a.observer.OnImport(report.Added, report.Failed, report.Skipped)
	}
	return report, err
}

// defaultImportSettings reads the import source from configuration.
func (a *app) defaultImportSettings() importSettings {
	return importSettings{
		driver:      a.cfg.Import.Driver,
		dsn:         a.cfg.Import.DSN,
		query:       a.cfg.Import.Query,
		concurrency: a.cfg.Import.Concurrency,
	}
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

// readImageFile reads an image from disk, "-" reads stdin.
func readImageFile(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return data, nil
}
