// Package storage keeps API uploads and results on disk, encrypted with a
// per-job key. Plaintext only exists inside the worker's job directory.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	filecrypto "mediaforge/internal/crypto"
)

type Storage struct {
	basePath   string
	inputsDir  string
	outputsDir string
	masterKey  []byte
}

func New(basePath string, masterKey []byte) (*Storage, error) {
	s := &Storage{
		basePath:   basePath,
		inputsDir:  filepath.Join(basePath, "inputs"),
		outputsDir: filepath.Join(basePath, "outputs"),
		masterKey:  masterKey,
	}

	for _, dir := range []string{s.inputsDir, s.outputsDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
		}
	}
	return s, nil
}

func (s *Storage) InputPath(jobID string) string {
	return filepath.Join(s.inputsDir, jobID)
}

func (s *Storage) OutputPath(jobID string) string {
	return filepath.Join(s.outputsDir, jobID)
}

func (s *Storage) key(jobID string) ([]byte, error) {
	key, err := filecrypto.DeriveKey(s.masterKey, jobID)
	if err != nil {
		return nil, fmt.Errorf("derive key for %s: %w", jobID, err)
	}
	return key, nil
}

// SaveInput encrypts an upload and returns its plaintext size.
func (s *Storage) SaveInput(jobID string, r io.Reader) (int64, error) {
	key, err := s.key(jobID)
	if err != nil {
		return 0, err
	}
	n, err := filecrypto.EncryptReader(key, r, s.InputPath(jobID))
	if err != nil {
		return 0, fmt.Errorf("store input %s: %w", jobID, err)
	}
	return n, nil
}

// RestoreInput decrypts the stored upload to dstPath.
func (s *Storage) RestoreInput(jobID, dstPath string) error {
	key, err := s.key(jobID)
	if err != nil {
		return err
	}
	if err := filecrypto.DecryptFile(key, s.InputPath(jobID), dstPath); err != nil {
		return fmt.Errorf("restore input %s: %w", jobID, err)
	}
	return nil
}

// SaveOutput encrypts a finished result and returns its plaintext size.
func (s *Storage) SaveOutput(jobID, srcPath string) (int64, error) {
	key, err := s.key(jobID)
	if err != nil {
		return 0, err
	}
	n, err := filecrypto.EncryptFile(key, srcPath, s.OutputPath(jobID))
	if err != nil {
		return 0, fmt.Errorf("store output %s: %w", jobID, err)
	}
	return n, nil
}

// StreamOutput decrypts the stored result into w.
func (s *Storage) StreamOutput(jobID string, w io.Writer) error {
	key, err := s.key(jobID)
	if err != nil {
		return err
	}
	f, err := os.Open(s.OutputPath(jobID))
	if err != nil {
		return fmt.Errorf("open output %s: %w", jobID, err)
	}
	defer f.Close()

	if err := filecrypto.DecryptStream(key, f, w); err != nil {
		return fmt.Errorf("stream output %s: %w", jobID, err)
	}
	return nil
}

func (s *Storage) OutputExists(jobID string) bool {
	_, err := os.Stat(s.OutputPath(jobID))
	return err == nil
}

func (s *Storage) DeleteJobFiles(jobID string) error {
	var errs []error
	for _, p := range []string{s.InputPath(jobID), s.OutputPath(jobID)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Storage) UsedBytes() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return nil
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}

func (s *Storage) UsedMB() int64 {
	bytes, _ := s.UsedBytes()
	return bytes / (1024 * 1024)
}
