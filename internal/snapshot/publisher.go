// Package snapshot publishes the machine-readable status document that
// external readers (the web front end) poll.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/seolyn/vigil/internal/resource"
	"github.com/seolyn/vigil/internal/service"
)

// Document is the published status artifact. It is overwritten whole each
// publish cycle; no history is retained.
type Document struct {
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Resources Resources         `json:"resources"`
}

type Resources struct {
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
}

// Build assembles a document from the tick's service states and the latest
// resource sample.
func Build(states []service.State, sample resource.Sample) Document {
	services := make(map[string]string, len(states))
	for _, st := range states {
		services[st.Spec.Name] = string(st.Status)
	}
	return Document{
		Timestamp: time.Now().UTC(),
		Services:  services,
		Resources: Resources{
			MemoryPercent: sample.MemoryPercent,
			DiskPercent:   sample.DiskPercent,
		},
	}
}

// Publisher writes documents to a fixed path with write-to-temp-then-rename
// so a concurrent reader never observes a half-written file.
type Publisher struct {
	path string
}

func NewPublisher(path string) *Publisher { return &Publisher{path: path} }

func (p *Publisher) Path() string { return p.path }

// Publish replaces the snapshot file atomically. The temp file lives in the
// destination directory so the rename stays on one filesystem.
func (p *Publisher) Publish(doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	dir := filepath.Dir(p.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	// CreateTemp opens the file 0600; the snapshot exists to be read by
	// other processes (the web front end), so widen it before the rename.
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod snapshot: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Read loads and parses a published snapshot. Used by the status CLI and by
// any embedding that prefers the file over the HTTP surface.
func Read(path string) (Document, error) {
	var doc Document
	// #nosec G304 -- snapshot path comes from configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return doc, nil
}
