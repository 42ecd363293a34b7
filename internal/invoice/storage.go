package invoice

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Storage defines file storage for generated artifacts
type Storage interface {
	// Save writes data under the relative path and returns the stored path
	Save(name string, data []byte) (string, error)

	// Get reads a stored file
	Get(name string) ([]byte, error)

	// Delete removes a stored file
	Delete(name string) error

	// URL is the public address of a stored file
	URL(name string) string
}

// LocalStorage stores files below a base directory and serves them from a public base URL
type LocalStorage struct {
	basePath  string
	publicURL string
}

// NewLocalStorage creates the base directory if needed. publicURL is the address the
// base directory is served from, e.g. http://localhost:8080/files.
func NewLocalStorage(basePath, publicURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath:  basePath,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// Save writes a file, creating intermediate directories
func (l *LocalStorage) Save(name string, data []byte) (string, error) {
	full, clean, err := l.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return clean, nil
}

// Get reads a file from local storage
func (l *LocalStorage) Get(name string) ([]byte, error) {
	full, _, err := l.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file from local storage
func (l *LocalStorage) Delete(name string) error {
	full, _, err := l.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// URL joins the public base URL and the stored path
func (l *LocalStorage) URL(name string) string {
	return l.publicURL + "/" + strings.TrimLeft(path.Clean("/"+name), "/")
}

// resolve maps a slash separated name to a file inside basePath
func (l *LocalStorage) resolve(name string) (string, string, error) {
	clean := strings.TrimLeft(path.Clean("/"+name), "/")
	if clean == "" || strings.Contains(name, "..") {
		return "", "", errors.New("invalid file path")
	}
	return filepath.Join(l.basePath, filepath.FromSlash(clean)), clean, nil
}
