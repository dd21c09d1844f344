package module

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ImageExt is the extension of compressed module images. Files ending in
// ".ilm.yaml" hold the plain document.
const ImageExt = ".ilm"

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// IsCompressed reports whether data starts with a zstd frame.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, zstdMagic)
}

// compressZstd compresses data using zstd.
func compressZstd(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// decompressZstd decompresses zstd-compressed data.
func decompressZstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

// Unmarshal decodes an image, decompressing it first when needed.
func Unmarshal(data []byte) (*Module, error) {
	if IsCompressed(data) {
		raw, err := decompressZstd(data)
		if err != nil {
			return nil, fmt.Errorf("decompress image: %w", err)
		}
		data = raw
	}
	return Decode(data)
}

// Marshal encodes m, compressing the document when compress is set.
func Marshal(m *Module, compress bool) ([]byte, error) {
	data, err := Encode(m)
	if err != nil {
		return nil, err
	}
	if !compress {
		return data, nil
	}
	out, err := compressZstd(data)
	if err != nil {
		return nil, fmt.Errorf("compress image %s: %w", m.Name, err)
	}
	return out, nil
}

// Compressed reports whether path names a compressed image.
func Compressed(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ImageExt)
}

// ReadFile loads the image at path.
func ReadFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	m, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", path, err)
	}
	return m, nil
}

// WriteFile stores m at path, compressed when path ends in ImageExt.
func WriteFile(path string, m *Module) error {
	data, err := Marshal(m, Compressed(path))
	if err != nil {
		return err
	}
	return WriteAtomic(path, data)
}

// WriteAtomic writes data to a temp file beside path and renames it into
// place.
func WriteAtomic(path string, data []byte) error {
	tmp, err := StageFile(path, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s rename: %w", path, err)
	}
	return nil
}

// StageFile writes data to a temp file in path's directory and returns
// the temp file name. The caller renames or removes it.
func StageFile(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("write %s mkdir: %w", path, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("write %s tmpfile: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("write %s close: %w", path, err)
	}
	return tmpName, nil
}

// HashBytes computes the SHA-256 of data as lowercase hex.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SigningPayload is the byte string a detached image signature covers.
func SigningPayload(name string, data []byte) []byte {
	return []byte(fmt.Sprintf("shroud-image\x00%s\x00%s", name, HashBytes(data)))
}
