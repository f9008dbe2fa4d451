package storage

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/pricetracker/price-tracker/internal/models"
	"github.com/pricetracker/price-tracker/internal/parser"
)

// FileStore keeps product records in a single JSON file. It is meant for
// local runs without Postgres.
type FileStore struct {
	mu       sync.RWMutex
	records  []models.ProductRecord
	filename string
}

func NewFileStore(filename string) (*FileStore, error) {
	if filename == "" {
		return nil, fmt.Errorf("store file is required")
	}

	fs := &FileStore{filename: filename}

	// Load existing data if file exists
	if err := fs.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return fs, nil
}

func (fs *FileStore) InsertBatch(_ context.Context, records []models.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	next := append(slices.Clone(fs.records), records...)
	if err := fs.save(next); err != nil {
		return err
	}
	fs.records = next
	return nil
}

func (fs *FileStore) ClearAll(_ context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.save(nil); err != nil {
		return err
	}
	fs.records = nil
	return nil
}

// ListByPrice returns a copy of all records ordered by ascending numeric
// price. Prices that cannot be parsed sort last in insertion order.
func (fs *FileStore) ListByPrice(_ context.Context) ([]models.ProductRecord, error) {
	fs.mu.RLock()
	out := slices.Clone(fs.records)
	fs.mu.RUnlock()

	if out == nil {
		out = []models.ProductRecord{}
	}

	slices.SortStableFunc(out, func(a, b models.ProductRecord) int {
		av, aok := parser.ParsePrice(a.Price)
		bv, bok := parser.ParsePrice(b.Price)
		switch {
		case aok && bok:
			if c := cmp.Compare(av, bv); c != 0 {
				return c
			}
			return cmp.Compare(a.Price, b.Price)
		case aok:
			return -1
		case bok:
			return 1
		}
		return 0
	})

	return out, nil
}

// Ping reports whether the store directory is still reachable.
func (fs *FileStore) Ping(_ context.Context) error {
	_, err := os.Stat(filepath.Dir(fs.filename))
	return err
}

func (fs *FileStore) Count() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return len(fs.records)
}

func (fs *FileStore) save(records []models.ProductRecord) error {
	if records == nil {
		records = []models.ProductRecord{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first for atomicity
	tmpFile := fs.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}

	if err := os.Rename(tmpFile, fs.filename); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

func (fs *FileStore) Load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.filename)
	if err != nil {
		return err
	}

	var records []models.ProductRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to decode store file: %w", err)
	}
	fs.records = records
	return nil
}
