// Package archive keeps a copy of every rendered campaign message so that
// what a recipient was sent can be inspected later.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when no message is archived under the key.
	ErrNotFound = errors.New("archive: message not found")
	// ErrInvalidKey is returned for ids that cannot form a safe key.
	ErrInvalidKey = errors.New("archive: invalid key")
)

// Archive stores rendered messages keyed by campaign and recipient.
type Archive interface {
	Put(ctx context.Context, campaignID, recipientID string, data []byte) error
	Get(ctx context.Context, campaignID, recipientID string) ([]byte, error)
	Delete(ctx context.Context, campaignID, recipientID string) error
}

// Config holds configuration for creating an Archive.
type Config struct {
	Type       string // "", "local" or "s3"
	Path       string // base directory for local archive
	S3Bucket   string
	S3Prefix   string
	S3Endpoint string
	S3Region   string
}

// New creates an Archive from cfg. An empty Type disables archiving and
// returns a Nop archive. Unsupported types fall back to local storage with
// a warning.
func New(cfg Config, logger zerolog.Logger) (Archive, error) {
	switch cfg.Type {
	case "", "none":
		return Nop{}, nil
	case "local":
		return NewLocalArchive(cfg.Path)
	case "s3":
		return NewS3ArchiveFromConfig(cfg)
	default:
		logger.Warn().
			Str("type", cfg.Type).
			Msg("unsupported archive type, defaulting to local")
		return NewLocalArchive(cfg.Path)
	}
}

// Key returns the object key of one message: "<campaignID>/<recipientID>.eml".
func Key(campaignID, recipientID string) (string, error) {
	for _, id := range []string{campaignID, recipientID} {
		if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, id)
		}
	}
	return campaignID + "/" + recipientID + ".eml", nil
}

// Nop discards writes and finds nothing.
type Nop struct{}

func (Nop) Put(context.Context, string, string, []byte) error { return nil }

func (Nop) Get(context.Context, string, string) ([]byte, error) { return nil, ErrNotFound }

func (Nop) Delete(context.Context, string, string) error { return nil }
