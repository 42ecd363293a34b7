package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Repository stores invoice records and their generated files
type Repository struct {
	db         DB
	storage    Storage
	timeSource TimeSource
}

// NewRepository creates a Repository using the system clock
func NewRepository(db DB, storage Storage) *Repository {
	return NewRepositoryWithDeps(db, storage, defaultTimeSource{})
}

// NewRepositoryWithDeps creates a Repository with a custom clock for testing
func NewRepositoryWithDeps(db DB, storage Storage, timeSrc TimeSource) *Repository {
	return &Repository{db: db, storage: storage, timeSource: timeSrc}
}

// Upload writes an artifact and returns its public URL
func (r *Repository) Upload(ctx context.Context, data []byte, path string, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	saved, err := r.storage.Save(path, data)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", path, err)
	}
	slog.Debug("Stored artifact", "path", saved, "content_type", contentType, "size", len(data))
	return r.storage.URL(saved), nil
}

// Save stores rec under id, stamping creation and update times
func (r *Repository) Save(ctx context.Context, id string, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := r.timeSource.Now()
	rec.ID = id
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	if err := r.db.SaveRecord(rec); err != nil {
		return fmt.Errorf("saving invoice record: %w", err)
	}
	return nil
}

// Get retrieves a record by ID
func (r *Repository) Get(id string) (*Record, error) {
	rec, err := r.db.GetRecord(id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}
	return rec, nil
}

// List returns all records, newest first
func (r *Repository) List() ([]*Record, error) {
	records, err := r.db.ListRecords()
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	return records, nil
}

// File reads a stored artifact by its storage path
func (r *Repository) File(path string) ([]byte, error) {
	data, err := r.storage.Get(path)
	if err != nil {
		return nil, fmt.Errorf("getting invoice file: %w", err)
	}
	return data, nil
}

// Delete removes a record and its files
func (r *Repository) Delete(id string) error {
	rec, err := r.db.GetRecord(id)
	if err != nil {
		return fmt.Errorf("getting invoice for deletion: %w", err)
	}

	for _, p := range []string{rec.PDFPath, rec.XMLPath} {
		if p == "" {
			continue
		}
		if err := r.storage.Delete(p); err != nil {
			slog.Warn("Failed to delete file", "path", p, "error", err)
		}
	}

	if err := r.db.DeleteRecord(id); err != nil {
		return fmt.Errorf("deleting invoice from database: %w", err)
	}
	return nil
}
