package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultOutputDir = "./mail_output"

// File writes each message as an .eml file under OutputDir, one
// subdirectory per campaign. Nothing is delivered.
type File struct {
	outputDir string
	now       func() time.Time
}

func NewFile(cfg ProviderConfig) *File {
	dir := cfg.OutputDir
	if dir == "" {
		dir = defaultOutputDir
	}
	return &File{outputDir: dir, now: time.Now}
}

func (f *File) GetName() string { return "file" }

// Send writes <campaign>/<timestamp>_<message-id>.eml. Readers never see a
// partially written file.
func (f *File) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := f.outputDir
	if campaign := msg.Tags["campaign_id"]; campaign != "" {
		dir = filepath.Join(dir, safeName(campaign))
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("file: create output dir: %w", err)
	}

	now := f.now()
	raw, err := composeMIME(msg, now)
	if err != nil {
		return nil, fmt.Errorf("file: compose: %w", err)
	}

	name := now.UTC().Format("20060102_150405.000000") + "_" + safeName(msg.ID) + ".eml"
	path := filepath.Join(dir, name)
	if err := writeAtomic(dir, path, raw); err != nil {
		return nil, fmt.Errorf("file: write %s: %w", path, err)
	}

	return &DeliveryResult{
		ProviderMessageID: "file-" + msg.ID,
		Timestamp:         now,
		Metadata:          map[string]string{"path": path},
	}, nil
}

// HealthCheck creates and removes a probe file in the output directory.
func (f *File) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(f.outputDir, 0o750); err != nil {
		return fmt.Errorf("file: output dir not writable: %w", err)
	}
	probe, err := os.CreateTemp(f.outputDir, ".probe-*")
	if err != nil {
		return fmt.Errorf("file: output dir not writable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}

func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".eml-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o640); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// safeName maps s onto a single path element.
func safeName(s string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
	if clean == "" || strings.Trim(clean, ".") == "" {
		return "_"
	}
	return clean
}
