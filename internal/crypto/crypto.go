// Package crypto encrypts staged uploads and results at rest. Each job gets its
// own AES-256 key derived from the master key with HKDF. Streams are split into
// 64 KiB AES-GCM chunks; the last chunk is authenticated as final so a stream
// cut at a chunk boundary is rejected.
package crypto

import (
	"bufio"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"golang.org/x/crypto/hkdf"
)

const (
	chunkSize = 64 * 1024
	keySize   = 32

	hkdfInfo = "mediaforge-staged-file"
)

var (
	ErrTruncated = errors.New("encrypted stream is truncated")
	ErrTampered  = errors.New("encrypted stream failed authentication")
)

// DeriveKey returns the per-job key for jobID.
func DeriveKey(masterKey []byte, jobID string) ([]byte, error) {
	if len(masterKey) != keySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", keySize, len(masterKey))
	}
	if jobID == "" {
		return nil, errors.New("job id is required for key derivation")
	}

	r := hkdf.New(sha256.New, masterKey, []byte(jobID), []byte(hkdfInfo))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf key derivation: %w", err)
	}
	return key, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return aead, nil
}

// EncryptStream writes a random base nonce followed by sealed chunks. An empty
// source still produces one final chunk.
func EncryptStream(key []byte, src io.Reader, dst io.Writer) error {
	aead, err := newAEAD(key)
	if err != nil {
		return err
	}

	base := make([]byte, aead.NonceSize())
	if _, err := rand.Read(base); err != nil {
		return fmt.Errorf("nonce generation: %w", err)
	}
	if _, err := dst.Write(base); err != nil {
		return fmt.Errorf("write nonce: %w", err)
	}

	r := bufio.NewReaderSize(src, chunkSize)
	buf := make([]byte, chunkSize)
	sealed := make([]byte, 0, chunkSize+aead.Overhead())

	for idx := uint32(0); ; idx++ {
		n, final, err := readChunk(r, buf)
		if err != nil {
			return fmt.Errorf("read chunk %d: %w", idx, err)
		}

		sealed = aead.Seal(sealed[:0], chunkNonce(base, idx), buf[:n], chunkAAD(final))
		if _, err := dst.Write(sealed); err != nil {
			return fmt.Errorf("write chunk %d: %w", idx, err)
		}
		if final {
			return nil
		}
		if idx == math.MaxUint32 {
			return errors.New("stream too large to encrypt")
		}
	}
}

func DecryptStream(key []byte, src io.Reader, dst io.Writer) error {
	aead, err := newAEAD(key)
	if err != nil {
		return err
	}

	base := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(src, base); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrTruncated
		}
		return fmt.Errorf("read nonce: %w", err)
	}

	encSize := chunkSize + aead.Overhead()
	r := bufio.NewReaderSize(src, encSize)
	buf := make([]byte, encSize)
	plain := make([]byte, 0, chunkSize)

	for idx := uint32(0); ; idx++ {
		n, final, err := readChunk(r, buf)
		if err != nil {
			return fmt.Errorf("read chunk %d: %w", idx, err)
		}
		if n == 0 {
			return ErrTruncated
		}

		plain, err = aead.Open(plain[:0], chunkNonce(base, idx), buf[:n], chunkAAD(final))
		if err != nil {
			return fmt.Errorf("chunk %d: %w", idx, ErrTampered)
		}
		if _, err := dst.Write(plain); err != nil {
			return fmt.Errorf("write chunk %d: %w", idx, err)
		}
		if final {
			return nil
		}
	}
}

// readChunk fills buf and reports whether nothing follows it.
func readChunk(r *bufio.Reader, buf []byte) (int, bool, error) {
	n, err := io.ReadFull(r, buf)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return n, true, nil
	case err != nil:
		return n, false, err
	}
	if _, err := r.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return n, true, nil
		}
		return n, false, err
	}
	return n, false, nil
}

func chunkNonce(base []byte, idx uint32) []byte {
	nonce := make([]byte, len(base))
	copy(nonce, base)
	nonce[8] ^= byte(idx >> 24)
	nonce[9] ^= byte(idx >> 16)
	nonce[10] ^= byte(idx >> 8)
	nonce[11] ^= byte(idx)
	return nonce
}

func chunkAAD(final bool) []byte {
	if final {
		return []byte{1}
	}
	return []byte{0}
}

// EncryptReader encrypts src into dstPath and returns the plaintext size.
func EncryptReader(key []byte, src io.Reader, dstPath string) (n int64, err error) {
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dstPath, err)
	}
	defer func() {
		if closeErr := dst.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("close %s: %w", dstPath, closeErr)
		}
		if err != nil {
			os.Remove(dstPath)
		}
	}()

	counter := &countingReader{r: src}
	if err = EncryptStream(key, counter, dst); err != nil {
		return 0, err
	}
	if err = dst.Sync(); err != nil {
		return 0, fmt.Errorf("sync %s: %w", dstPath, err)
	}
	return counter.n, nil
}

func EncryptFile(key []byte, srcPath, dstPath string) (int64, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer src.Close()
	return EncryptReader(key, src, dstPath)
}

func DecryptFile(key []byte, srcPath, dstPath string) (err error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", dstPath, err)
	}
	defer func() {
		if closeErr := dst.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("close %s: %w", dstPath, closeErr)
		}
		if err != nil {
			os.Remove(dstPath)
		}
	}()

	return DecryptStream(key, src, dst)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
