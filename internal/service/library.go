package service

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// documentExt is the extension of map documents on disk.
const documentExt = ".html"

// ErrInvalidName is returned for document names that are not plain file names.
var ErrInvalidName = errors.New("invalid document name")

// List returns all documents in the documents directory.
func (s *DocumentService) List() ([]DocumentFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []DocumentFile{}, nil
		}
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	files := []DocumentFile{}
	for _, entry := range entries {
		if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != documentExt {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		_, open := s.docs[name]
		files = append(files, DocumentFile{
			Name: name,
			Size: formatSize(info.Size()),
			Open: open,
		})
	}

	return files, nil
}

// ErrDocumentOpen is returned when saving over a document that is open.
var ErrDocumentOpen = errors.New("document is open")

// maxDocumentSize bounds uploaded markup.
const maxDocumentSize = 10 << 20

// Save writes markup as the named document. Open documents must be closed
// first so their elements never diverge from the file.
func (s *DocumentService) Save(name string, r io.Reader) (DocumentFile, error) {
	path, err := s.path(name)
	if err != nil {
		return DocumentFile{}, err
	}
	s.mu.Lock()
	_, open := s.docs[name]
	s.mu.Unlock()
	if open {
		return DocumentFile{}, fmt.Errorf("%w: %s", ErrDocumentOpen, name)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return DocumentFile{}, fmt.Errorf("creating documents dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return DocumentFile{}, fmt.Errorf("saving %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(r, maxDocumentSize))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return DocumentFile{}, fmt.Errorf("saving %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return DocumentFile{}, fmt.Errorf("saving %s: %w", name, err)
	}

	s.logger.Info("document saved", "document", name, "bytes", n)
	s.bus.Publish(Event{Document: name, Resource: "documents", Action: "saved", ID: name})
	return DocumentFile{Name: name, Size: formatSize(n)}, nil
}

// DocumentsDir returns the path to the documents directory.
func (s *DocumentService) DocumentsDir() string {
	return s.dir
}

// path returns the file path of the named document.
func (s *DocumentService) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name+documentExt), nil
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
