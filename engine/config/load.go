package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML (.yaml, .yml) or TOML (.toml) parameter file, applies environment
// overrides and validates the result.
//
// Parameters:
//   - path: the parameter file
//
// Returns:
//   - Params: the loaded parameters
//   - error: error if the file cannot be read, decoded or validated
func Load(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("failed to read params file: %w", err)
	}
	return Decode(data, filepath.Ext(path))
}

// Decode parses parameter data in the format named by ext, applies environment
// overrides and validates the result.
//
// Parameters:
//   - data: the encoded parameters
//   - ext: the format, ".yaml", ".yml" or ".toml"
//
// Returns:
//   - Params: the decoded parameters
//   - error: error if the format is unknown or the data is invalid
func Decode(data []byte, ext string) (Params, error) {
	var p Params
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
			return Params{}, fmt.Errorf("failed to parse params: %w", err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return Params{}, fmt.Errorf("failed to parse params: %w", err)
		}
	default:
		return Params{}, fmt.Errorf("%w: unsupported params format %q", ErrInvalidParams, ext)
	}
	if err := p.ApplyEnv(); err != nil {
		return Params{}, err
	}
	if err := p.Validate(); err != nil {
		return Params{}, fmt.Errorf("invalid params: %w", err)
	}
	return p, nil
}

// Watch reloads the parameter file whenever it is written and hands every valid
// result to fn. Invalid edits are logged and skipped. Watch blocks until ctx is done.
//
// Parameters:
//   - ctx: cancels the watch
//   - path: the parameter file
//   - logger: receives reload failures
//   - fn: called with every successfully reloaded parameter set
//
// Returns:
//   - error: error if the watcher cannot be created
func Watch(ctx context.Context, path string, logger *slog.Logger, fn func(Params)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create params watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so watch the directory and filter by name.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch params file: %w", err)
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			p, err := Load(path)
			if err != nil {
				logger.Warn("params reload failed", "path", path, "err", err)
				continue
			}
			fn(p)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("params watcher error", "path", path, "err", err)
		}
	}
}
