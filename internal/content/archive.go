package content

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"testing/fstest"
)

const (
	// maxReleaseSize is the maximum size of a compressed release from s3
	maxReleaseSize int64 = 20 * 1024 * 1024 // 20MB

	// maxSingleFile is the maximum size of a single file in the release
	maxSingleFile int64 = 4 * 1024 * 1024 // 4MB

	// maxTotalExtract is the maximum total size of extracted content
	maxTotalExtract int64 = 64 * 1024 * 1024 // 64MB

	// maxSignatureSize bounds the detached signature object
	maxSignatureSize int64 = 8 * 1024
)

// readWithHash reads all bytes from r up to maxSize, computing SHA256
// as it reads. Returns the data, hex-encoded hash, and any error.
func readWithHash(r io.Reader, maxSize int64) ([]byte, string, error) {
	h := sha256.New()
	lr := io.LimitReader(r, maxSize+1)
	tr := io.TeeReader(lr, h)

	data, err := io.ReadAll(tr)
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > maxSize {
		return nil, "", fmt.Errorf("content exceeds max size (%d bytes, limit %d)", len(data), maxSize)
	}

	return data, hex.EncodeToString(h.Sum(nil)), nil
}

// extractTarGzToMem extracts a .tar.gz release to an in-memory filesystem
func extractTarGzToMem(data []byte) (fs.FS, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer gr.Close()

	mfs := make(fstest.MapFS)
	tr := tar.NewReader(gr)

	var totalBytes int64

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar header: %w", err)
		}

		cleanName := path.Clean(strings.TrimPrefix(hdr.Name, "./"))
		if cleanName == "." || cleanName == "" {
			continue
		}
		if path.IsAbs(cleanName) {
			return nil, fmt.Errorf("absolute path in archive: %s", hdr.Name)
		}
		if strings.Contains(cleanName, "..") || !fs.ValidPath(cleanName) {
			return nil, fmt.Errorf("path traversal in archive: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			// directories are implicit in MapFS
			continue

		case tar.TypeReg:
			if hdr.Size > maxSingleFile {
				return nil, fmt.Errorf("file %s exceeds max size (%d > %d)",
					cleanName, hdr.Size, maxSingleFile)
			}

			content, err := io.ReadAll(io.LimitReader(tr, maxSingleFile+1))
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", cleanName, err)
			}
			if int64(len(content)) > maxSingleFile {
				return nil, fmt.Errorf("file %s exceeds max size after read", cleanName)
			}

			totalBytes += int64(len(content))
			if totalBytes > maxTotalExtract {
				return nil, fmt.Errorf("total extracted size exceeds limit (%d bytes, max %d)",
					totalBytes, maxTotalExtract)
			}

			mfs[cleanName] = &fstest.MapFile{
				Data: content,
				Mode: hdr.FileInfo().Mode().Perm(),
			}

		default:
			return nil, fmt.Errorf("unsupported file type in archive: %s (type=%d)",
				cleanName, hdr.Typeflag)
		}
	}

	return mfs, nil
}
