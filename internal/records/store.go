package records

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tend/internal/config"
	"tend/internal/fileutil"
	"tend/internal/logging"
)

const (
	backupSuffix    = ".backup"
	corruptedPrefix = ".corrupted_"

	// maxLineBytes bounds a single serialized record; email bodies are stored
	// inline so lines can be large.
	maxLineBytes = 4 << 20
)

// Store persists records in a line-delimited JSON file. Every full rewrite is
// preceded by a backup copy and performed as temp-file-plus-rename so readers
// never observe a partial file. The store assumes a single writer process; the
// daemon's file lock enforces that.
type Store struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	skipped int
}

// Open creates a store rooted at the configured state file path.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return NewStore(cfg.StateFilePath(), logger), nil
}

// NewStore creates a store for an explicit file path. Used by tests and tools.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		path:   path,
		logger: logging.NewComponentLogger(logger, "record-store"),
	}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// SkippedLines reports how many malformed lines the last read pass ignored.
func (s *Store) SkippedLines() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// ReadAll returns every well-formed record in the state file. Malformed lines
// are skipped and counted, never fatal. A missing file yields an empty slice.
func (s *Store) ReadAll() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAllLocked()
}

func (s *Store) readAllLocked() ([]Record, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	var (
		recs    []Record
		skipped int
		lineNo  int
	)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec, err := DecodeLine(line)
		if err != nil || rec.EmailID == "" {
			skipped++
			s.logger.Warn("skipping malformed state line",
				logging.Int("line", lineNo),
				logging.Error(err),
			)
			continue
		}
		recs = append(recs, *rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	s.skipped = skipped
	return recs, nil
}

// WriteAll replaces the state file with the given records. The previous file
// is copied to a .backup path first, and the new contents are written to a
// temporary file and renamed into place.
func (s *Store) WriteAll(recs []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAllLocked(recs)
}

func (s *Store) writeAllLocked(recs []Record) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := fileutil.CopyFile(s.path, s.path+backupSuffix); err != nil {
			return fmt.Errorf("back up state file: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat state file: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+config.StateFileName+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	writer := bufio.NewWriter(tmp)
	for i := range recs {
		line, err := EncodeLine(&recs[i])
		if err != nil {
			cleanup()
			return err
		}
		if _, err := writer.Write(line); err != nil {
			cleanup()
			return fmt.Errorf("write state line: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			cleanup()
			return fmt.Errorf("write state line: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		cleanup()
		return fmt.Errorf("flush state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Append adds one record without rewriting the file. I/O failures propagate so
// callers never lose a record silently.
func (s *Store) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	line, err := EncodeLine(&rec)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open state file for append: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append record %s: %w", rec.EmailID, err)
	}
	return file.Close()
}

// Update applies mutate to the record matching emailID, bumps UpdatedAt
// monotonically, and rewrites the store. AttemptCount increments when the
// mutation changed the status, and a status change that the transition graph
// forbids is rejected. Returns false without error when no record matches.
func (s *Store) Update(emailID string, mutate func(*Record)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readAllLocked()
	if err != nil {
		return false, err
	}
	for i := range recs {
		if recs[i].EmailID != emailID {
			continue
		}
		prevStatus := recs[i].Status
		mutate(&recs[i])
		if recs[i].Status != prevStatus && !CanTransition(prevStatus, recs[i].Status) {
			return false, fmt.Errorf("record %s: status cannot move from %s to %s",
				emailID, prevStatus, recs[i].Status)
		}

		now := time.Now().UTC()
		if !now.After(recs[i].UpdatedAt) {
			now = recs[i].UpdatedAt.Add(time.Nanosecond)
		}
		recs[i].UpdatedAt = now
		if recs[i].Status != prevStatus {
			recs[i].AttemptCount++
		}
		if err := s.writeAllLocked(recs); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Find returns the record with the given email id, or nil.
func (s *Store) Find(emailID string) (*Record, error) {
	recs, err := s.ReadAll()
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].EmailID == emailID {
			rec := recs[i]
			return &rec, nil
		}
	}
	return nil, nil
}

// HasConversation reports whether any record belongs to the conversation.
// An empty conversation id never matches.
func (s *Store) HasConversation(conversationID string) (bool, error) {
	if conversationID == "" {
		return false, nil
	}
	recs, err := s.ReadAll()
	if err != nil {
		return false, err
	}
	for i := range recs {
		if recs[i].ConversationID == conversationID {
			return true, nil
		}
	}
	return false, nil
}

// FindByConversation returns the record for a conversation, or nil.
func (s *Store) FindByConversation(conversationID string) (*Record, error) {
	if conversationID == "" {
		return nil, nil
	}
	recs, err := s.ReadAll()
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].ConversationID == conversationID {
			rec := recs[i]
			return &rec, nil
		}
	}
	return nil, nil
}

// FindStale returns records whose age since the last mutation exceeds the
// threshold and whose status satisfies the predicate.
func (s *Store) FindStale(threshold time.Duration, match func(Status) bool) ([]Record, error) {
	recs, err := s.ReadAll()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var stale []Record
	for i := range recs {
		if match != nil && !match(recs[i].Status) {
			continue
		}
		if recs[i].Age(now) > threshold {
			stale = append(stale, recs[i])
		}
	}
	return stale, nil
}

// RecoverFromCorruption quarantines an unreadable state file under a
// timestamped name and starts a fresh empty store. Returns the quarantine
// path.
func (s *Store) RecoverFromCorruption() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quarantine := s.path + corruptedPrefix + time.Now().UTC().Format("20060102T150405Z")
	if err := os.Rename(s.path, quarantine); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("quarantine state file: %w", err)
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create fresh state file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close fresh state file: %w", err)
	}
	s.logger.Warn("state file quarantined after corruption",
		logging.String("quarantine_path", quarantine),
	)
	return quarantine, nil
}

// Summary aggregates record counts per status for observability surfaces.
type Summary struct {
	Total  int
	Counts map[Status]int
}

// Summarize computes a per-status census of the store.
func (s *Store) Summarize() (Summary, error) {
	recs, err := s.ReadAll()
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Total: len(recs), Counts: make(map[Status]int, len(allStatuses))}
	for i := range recs {
		summary.Counts[recs[i].Status]++
	}
	return summary, nil
}

// EncodeLine serializes a record to its single-line JSON form.
func EncodeLine(rec *Record) ([]byte, error) {
	line, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", rec.EmailID, err)
	}
	return line, nil
}

// DecodeLine parses a single state file line. Unknown fields are tolerated for
// forward compatibility.
func DecodeLine(line []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, fmt.Errorf("decode record line: %w", err)
	}
	return &rec, nil
}
