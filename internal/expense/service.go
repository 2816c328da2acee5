// Package expense wires the ingestion pipeline to persistent storage and
// exposes the operations the HTTP API serves.
package expense

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wenqian/expense-scanner/internal/export"
	"github.com/wenqian/expense-scanner/internal/extract"
	"github.com/wenqian/expense-scanner/internal/pipeline"
	"github.com/wenqian/expense-scanner/internal/recognize"
	"github.com/wenqian/expense-scanner/internal/record"
	"github.com/wenqian/expense-scanner/internal/segment"
)

// UploadFile is one user-submitted image or PDF in an upload batch.
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Service handles record operations: upload batches through the pipeline,
// import/export, and collection maintenance.
type Service struct {
	store    Store
	splitter segment.Splitter
	pool     pipeline.Pool
	factory  recognize.Factory

	mu         sync.Mutex
	tracker    *pipeline.Tracker
	processing bool
}

// NewService creates a Service over the given collaborators.
func NewService(store Store, splitter segment.Splitter, pool pipeline.Pool, factory recognize.Factory) *Service {
	return &Service{
		store:    store,
		splitter: splitter,
		pool:     pool,
		factory:  factory,
	}
}

// Records returns all stored records sorted newest first.
func (s *Service) Records() ([]record.Record, error) {
	records, err := s.loadRecords()
	if err != nil {
		return nil, err
	}
	return record.SortByTimeDesc(records), nil
}

// loadRecords reads the collection and migrates legacy un-normalized time
// keys (for example "2025/1/5 8:00:00") in place, persisting once if anything
// changed.
func (s *Service) loadRecords() ([]record.Record, error) {
	records, err := s.store.GetAll()
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}

	changed := false
	for i, r := range records {
		if normalized := record.NormalizeTime(r.Time); normalized != r.Time {
			records[i].Time = normalized
			changed = true
		}
	}
	if changed {
		slog.Info("Migrating legacy time keys", "records", len(records))
		if err := s.store.SaveAll(records); err != nil {
			return nil, fmt.Errorf("migrating records: %w", err)
		}
	}
	return records, nil
}

// ProcessUpload runs one batch: every file is decoded and segmented, the
// chunks are recognized by the worker pool, and extracted records are merged
// into the collection. It returns the number of new records. Any recognizer
// failure aborts the batch without persisting partial results.
func (s *Service) ProcessUpload(ctx context.Context, files []UploadFile) (int, error) {
	if len(files) == 0 {
		return 0, fmt.Errorf("no files provided")
	}

	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		return 0, fmt.Errorf("an upload batch is already processing")
	}
	s.processing = true
	s.tracker = nil
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.processing = false
		s.mu.Unlock()
	}()

	existing, err := s.loadRecords()
	if err != nil {
		return 0, err
	}

	chunks, err := s.segmentFiles(files)
	if err != nil {
		return 0, err
	}
	slog.Info("Segmented upload batch", "files", len(files), "chunks", len(chunks))

	tracker := pipeline.NewTracker(len(chunks), s.pool.Workers(len(chunks)))
	s.mu.Lock()
	s.tracker = tracker
	s.mu.Unlock()

	known := record.Keys(existing)
	var (
		resultMu   sync.Mutex
		newRecords []record.Record
	)
	_, err = s.pool.Process(ctx, chunks, s.factory, tracker, func(out pipeline.Outcome) {
		records := extract.Records(out.Text, known)
		if len(records) == 0 {
			return
		}
		resultMu.Lock()
		newRecords = append(newRecords, records...)
		resultMu.Unlock()
	})
	if err != nil {
		return 0, fmt.Errorf("processing batch: %w", err)
	}

	if len(newRecords) > 0 {
		if err := s.store.SaveAll(record.Merge(existing, newRecords)); err != nil {
			return 0, fmt.Errorf("saving records: %w", err)
		}
	}
	slog.Info("Upload batch complete", "chunks", len(chunks), "new_records", len(newRecords))
	return len(newRecords), nil
}

// segmentFiles decodes every upload and splits each resulting image,
// renumbering chunk ordinals so they are unique across the batch.
func (s *Service) segmentFiles(files []UploadFile) ([]segment.Chunk, error) {
	var chunks []segment.Chunk
	for _, f := range files {
		images, err := segment.Decode(f.Data, f.ContentType)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", f.Name, err)
		}
		for _, img := range images {
			split, err := s.splitter.Split(img)
			if err != nil {
				return nil, fmt.Errorf("segmenting %s: %w", f.Name, err)
			}
			for _, chunk := range split {
				chunk.Index = len(chunks)
				chunks = append(chunks, chunk)
			}
		}
	}
	return chunks, nil
}

// Progress returns the current batch progress in [0, 1] and whether a batch
// is running. Before any batch has run the progress is 0.
func (s *Service) Progress() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracker == nil {
		return 0, s.processing
	}
	return s.tracker.Progress(), s.processing
}

// ImportFile merges records from an exported JSON or CSV file, keyed on the
// file extension. It returns the number of records that were new.
func (s *Service) ImportFile(name string, content []byte) (int, error) {
	existing, err := s.loadRecords()
	if err != nil {
		return 0, err
	}

	var items []record.Record
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		items, err = export.ImportJSON(content)
		if err != nil {
			return 0, err
		}
	case ".csv":
		items = export.ImportCSV(content)
	default:
		return 0, fmt.Errorf("unsupported import format: %s", name)
	}

	fresh := record.FilterNew(items, record.Keys(existing))
	if len(fresh) == 0 {
		return 0, nil
	}
	if err := s.store.SaveAll(record.Merge(existing, fresh)); err != nil {
		return 0, fmt.Errorf("saving imported records: %w", err)
	}
	slog.Info("Imported records", "file", name, "new_records", len(fresh))
	return len(fresh), nil
}

// ExportJSON renders the collection in the grouped-by-month backup form.
func (s *Service) ExportJSON() ([]byte, error) {
	records, err := s.loadRecords()
	if err != nil {
		return nil, err
	}
	return export.JSON(records)
}

// ExportCSV renders the collection as BOM-prefixed CSV.
func (s *Service) ExportCSV() ([]byte, error) {
	records, err := s.loadRecords()
	if err != nil {
		return nil, err
	}
	return export.CSV(records), nil
}

// ClearAll removes every record.
func (s *Service) ClearAll() error {
	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("clearing records: %w", err)
	}
	return nil
}
