package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/gigrank/internal/coord"
	"github.com/roach88/gigrank/internal/model"
	"github.com/roach88/gigrank/internal/normalize"
	"github.com/roach88/gigrank/internal/store"
)

// Refresher recomputes derived scores after new data lands.
type Refresher interface {
	Refresh(ctx context.Context) (time.Time, error)
}

// ScanResult summarizes one directory scan.
type ScanResult struct {
	ScannedFiles int        `json:"scanned_files"`
	NewFiles     int        `json:"new_files"`
	UpdatedFiles int        `json:"updated_files"`
	DroppedRows  int        `json:"dropped_rows"`
	FailedFiles  int        `json:"failed_files"`
	RefreshedAt  *time.Time `json:"refreshed_at"`
}

// Changed reports whether any file was (re)ingested.
func (r ScanResult) Changed() bool {
	return r.NewFiles+r.UpdatedFiles > 0
}

type fileStatus int

const (
	fileUnchanged fileStatus = iota
	fileNew
	fileUpdated
)

// Scanner ingests export files from a directory tree.
type Scanner struct {
	store         *store.Store
	coord         *coord.Coordinator
	norm          *normalize.Normalizer
	refresher     Refresher
	alwaysRefresh bool
	now           func() time.Time
	logger        *slog.Logger
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithRefresher sets the refresh pass run after a scan.
func WithRefresher(r Refresher) ScannerOption {
	return func(s *Scanner) {
		s.refresher = r
	}
}

// WithAlwaysRefresh runs the refresh pass even when no file changed.
func WithAlwaysRefresh(always bool) ScannerOption {
	return func(s *Scanner) {
		s.alwaysRefresh = always
	}
}

// WithScanClock sets the clock used for ingest timestamps.
func WithScanClock(now func() time.Time) ScannerOption {
	return func(s *Scanner) {
		s.now = now
	}
}

// WithScanLogger sets the logger. Defaults to slog.Default().
func WithScanLogger(l *slog.Logger) ScannerOption {
	return func(s *Scanner) {
		s.logger = l
	}
}

// NewScanner creates a Scanner writing to st through c.
func NewScanner(st *store.Store, c *coord.Coordinator, norm *normalize.Normalizer, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		store:  st,
		coord:  c,
		norm:   norm,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsExportFile reports whether path looks like a supported export.
func IsExportFile(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".json":
		return true
	}
	return false
}

// Scan ingests every new or changed export under root. A failing file is
// logged and counted but never aborts the scan. Afterwards the refresh pass
// runs when anything changed (or always, when configured).
func (s *Scanner) Scan(ctx context.Context, root string) (ScanResult, error) {
	var res ScanResult

	info, err := os.Stat(root)
	if err != nil {
		return res, fmt.Errorf("scan %s: %w", root, err)
	}
	if !info.IsDir() {
		return res, fmt.Errorf("scan %s: not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if IsExportFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("scan %s: %w", root, err)
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.ScannedFiles++
		status, dropped, err := s.ingestFile(ctx, path)
		if err != nil {
			res.FailedFiles++
			s.logger.Error("ingest failed", "path", path, "error", err)
			continue
		}
		res.DroppedRows += dropped
		switch status {
		case fileNew:
			res.NewFiles++
		case fileUpdated:
			res.UpdatedFiles++
		}
	}

	if s.refresher != nil && (res.Changed() || s.alwaysRefresh) {
		at, err := s.refresher.Refresh(ctx)
		if err != nil {
			return res, fmt.Errorf("scan refresh: %w", err)
		}
		res.RefreshedAt = &at
	}

	s.logger.Info("scan complete",
		"root", root,
		"scanned", res.ScannedFiles,
		"new", res.NewFiles,
		"updated", res.UpdatedFiles,
		"dropped_rows", res.DroppedRows,
		"failed", res.FailedFiles)

	if res.Changed() {
		s.recordScan(ctx, root, res)
	}
	return res, nil
}

// IngestFile ingests a single export file, skipping it when its content is
// unchanged. Used by the directory watcher.
func (s *Scanner) IngestFile(ctx context.Context, path string) (bool, error) {
	status, _, err := s.ingestFile(ctx, path)
	return status != fileUnchanged, err
}

func (s *Scanner) ingestFile(ctx context.Context, path string) (fileStatus, int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fileUnchanged, 0, fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fileUnchanged, 0, fmt.Errorf("stat: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return fileUnchanged, 0, fmt.Errorf("read: %w", err)
	}
	hash := model.FileHash(data)

	prior, seen, err := s.store.IngestedFile(ctx, abs)
	if err != nil {
		return fileUnchanged, 0, err
	}
	if seen && prior.ContentHash == hash {
		return fileUnchanged, 0, nil
	}

	dataset := normalize.DetectDataset(abs)
	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(abs)), ".")
	var doc document
	switch fileType {
	case "csv":
		doc, err = readCSV(data, dataset)
	case "json":
		doc, err = readJSON(data, dataset)
	default:
		err = fmt.Errorf("unsupported file type %q", fileType)
	}
	if err != nil {
		return fileUnchanged, 0, err
	}

	keyword := normalize.InferKeyword(abs)
	if doc.keyword != "" {
		keyword = normalize.CanonicalKeyword(doc.keyword)
	}

	batch := normalize.Batch{Dropped: doc.skipped}
	for _, sec := range doc.sections {
		for _, row := range sec.rows {
			s.norm.Add(&batch, sec.kind, row, keyword, abs)
		}
	}

	now := s.now().UTC()
	record := model.IngestedFile{
		Path:        abs,
		ContentHash: hash,
		FileType:    fileType,
		Dataset:     doc.dataset,
		Keyword:     keyword,
		RowCount:    batch.Rows(),
		DroppedRows: batch.Dropped,
		SourceMtime: info.ModTime().UTC(),
		IngestedAt:  now,
	}

	// The hash is checked again under the permit: a concurrent scan may have
	// ingested the same content since the check above.
	status := fileUnchanged
	err = s.coord.RetryWrite(ctx, "ingest file", 0, func(ctx context.Context) error {
		prior, seen, err := s.store.IngestedFile(ctx, abs)
		if err != nil {
			return err
		}
		if seen && prior.ContentHash == hash {
			status = fileUnchanged
			return nil
		}
		err = s.store.IngestBatch(ctx, store.Batch{
			Listings:  batch.Listings,
			Providers: batch.Providers,
			Catalog:   batch.Catalog,
			File:      &record,
		})
		if err != nil {
			return err
		}
		status = fileNew
		if seen {
			status = fileUpdated
		}
		return nil
	})
	if err != nil {
		return fileUnchanged, 0, err
	}
	if status == fileUnchanged {
		return fileUnchanged, 0, nil
	}

	s.logger.Debug("ingested file",
		"path", abs,
		"dataset", doc.dataset,
		"keyword", keyword,
		"rows", record.RowCount,
		"dropped", record.DroppedRows)

	return status, batch.Dropped, nil
}

func (s *Scanner) recordScan(ctx context.Context, root string, res ScanResult) {
	ev, err := store.NewEvent(model.EventScan, struct {
		Root string `json:"root"`
		ScanResult
	}{root, res}, s.now())
	if err == nil {
		err = s.coord.Write(ctx, "record scan", 0, func(ctx context.Context) error {
			_, err := s.store.AppendEvent(ctx, ev)
			return err
		})
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("failed to record scan event", "error", err)
	}
}
