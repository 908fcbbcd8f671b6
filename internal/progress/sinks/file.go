package sinks

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/JakeFAU/streetview-harvester/internal/progress"
)

var csvHeader = []string{
	"timestamp", "run_id", "pass", "stage", "zone", "label", "unit_id", "status",
	"found", "checked", "total", "duration_ms", "date", "copyright", "note",
}

// FileSink appends events to a CSV file, a JSON-lines file, or both. Files
// are opened in append mode so restarts extend the same log.
type FileSink struct {
	mu    sync.Mutex
	csvF  *os.File
	csvW  *csv.Writer
	jsonF *os.File
	enc   *json.Encoder
}

// NewFileSink opens the configured files, creating parent directories. An
// empty path disables that format.
func NewFileSink(csvPath, jsonlPath string) (*FileSink, error) {
	s := &FileSink{}
	if csvPath != "" {
		f, fresh, err := openAppend(csvPath)
		if err != nil {
			return nil, err
		}
		s.csvF = f
		s.csvW = csv.NewWriter(f)
		if fresh {
			if err := s.csvW.Write(csvHeader); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("write csv header: %w", err)
			}
			s.csvW.Flush()
		}
	}
	if jsonlPath != "" {
		f, _, err := openAppend(jsonlPath)
		if err != nil {
			if s.csvF != nil {
				_ = s.csvF.Close()
			}
			return nil, err
		}
		s.jsonF = f
		s.enc = json.NewEncoder(f)
	}
	return s, nil
}

func openAppend(path string) (*os.File, bool, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, false, fmt.Errorf("create progress dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("open progress file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, false, fmt.Errorf("stat progress file: %w", err)
	}
	return f, info.Size() == 0, nil
}

// Consume appends each event and flushes once per batch.
func (s *FileSink) Consume(ctx context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("file sink: %w", err)
		}
		rec := evt.Record()
		if s.csvW != nil {
			if err := s.csvW.Write(csvRow(rec)); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
		if s.enc != nil {
			if err := s.enc.Encode(rec); err != nil {
				return fmt.Errorf("write jsonl row: %w", err)
			}
		}
	}
	if s.csvW != nil {
		s.csvW.Flush()
		if err := s.csvW.Error(); err != nil {
			return fmt.Errorf("flush csv: %w", err)
		}
	}
	return nil
}

func csvRow(r progress.Record) []string {
	return []string{
		r.Timestamp.Format(time.RFC3339Nano),
		r.RunID,
		r.Pass,
		r.Stage,
		r.Zone,
		r.Label,
		r.UnitID,
		r.Status,
		strconv.FormatInt(r.Found, 10),
		strconv.FormatInt(r.Checked, 10),
		strconv.FormatInt(r.Total, 10),
		strconv.FormatInt(r.DurationMs, 10),
		r.Date,
		r.Copyright,
		r.Note,
	}
}

// Close flushes and closes the files.
func (s *FileSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.csvF != nil {
		s.csvW.Flush()
		errs = append(errs, s.csvW.Error(), s.csvF.Close())
		s.csvF, s.csvW = nil, nil
	}
	if s.jsonF != nil {
		errs = append(errs, s.jsonF.Close())
		s.jsonF, s.enc = nil, nil
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close progress files: %w", err)
	}
	return nil
}
