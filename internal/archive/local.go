package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LocalArchive stores messages as files under a base directory, one
// subdirectory per campaign.
type LocalArchive struct {
	basePath string
}

// NewLocalArchive creates a LocalArchive rooted at basePath, creating the
// directory if needed.
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if basePath == "" {
		return nil, errors.New("archive: local path is required")
	}
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("archive: create base directory: %w", err)
	}
	return &LocalArchive{basePath: basePath}, nil
}

func (a *LocalArchive) path(campaignID, recipientID string) (string, error) {
	key, err := Key(campaignID, recipientID)
	if err != nil {
		return "", err
	}
	return filepath.Join(a.basePath, filepath.FromSlash(key)), nil
}

// Put writes message data using an atomic write pattern.
func (a *LocalArchive) Put(_ context.Context, campaignID, recipientID string, data []byte) error {
	finalPath, err := a.path(campaignID, recipientID)
	if err != nil {
		return err
	}
	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("archive: create campaign directory: %w", err)
	}

	// Write to a temp file in the same directory, then rename for atomicity.
	tmp, err := os.CreateTemp(dir, ".tmp-"+recipientID+"-*")
	if err != nil {
		return fmt.Errorf("archive: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("archive: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("archive: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("archive: rename temp file: %w", err)
	}
	return nil
}

// Get reads an archived message.
// Returns ErrNotFound if the message does not exist.
func (a *LocalArchive) Get(_ context.Context, campaignID, recipientID string) ([]byte, error) {
	p, err := a.path(campaignID, recipientID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("archive: read file: %w", err)
	}
	return data, nil
}

// Delete removes an archived message. Missing messages are not an error.
func (a *LocalArchive) Delete(_ context.Context, campaignID, recipientID string) error {
	p, err := a.path(campaignID, recipientID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("archive: remove file: %w", err)
	}
	return nil
}
