package chat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Save writes the log to path as indented JSON. The file is replaced
// atomically so a crash never leaves a truncated transcript.
func (l *Log) Save(path string) error {
	data, err := json.MarshalIndent(struct {
		Messages []Message `json:"messages"`
	}{Messages: l.Messages()}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'), 0o644)
}

// Load reads a transcript written by Save.
func Load(path string) ([]Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f struct {
		Messages []Message `json:"messages"`
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", path, err)
	}
	return f.Messages, nil
}

// writeFileAtomic writes to a temp file in the target directory, syncs it
// and renames it into place.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	fail := func(err error) error {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if _, err := f.Write(data); err != nil {
		return fail(err)
	}
	if err := f.Chmod(mode); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
