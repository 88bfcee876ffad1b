package integrity

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"teledrive/pkg/models"
)

// StreamingHasher calculates MD5 and SHA-256 while bytes flow to the spool file
type StreamingHasher struct {
	md5Hash    hash.Hash
	sha256Hash hash.Hash
	w          io.Writer
	size       int64
}

// StreamingHashes contains the calculated digests
type StreamingHashes struct {
	MD5    string `json:"md5"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// NewStreamingHasher creates a new streaming hasher
func NewStreamingHasher() *StreamingHasher {
	sh := &StreamingHasher{
		md5Hash:    md5.New(),
		sha256Hash: sha256.New(),
	}
	sh.w = io.MultiWriter(sh.md5Hash, sh.sha256Hash)
	return sh
}

// Write implements io.Writer
func (sh *StreamingHasher) Write(p []byte) (n int, err error) {
	n, err = sh.w.Write(p)
	sh.size += int64(n)
	return n, err
}

// Reset discards everything hashed so far, used when a download restarts
func (sh *StreamingHasher) Reset() {
	sh.md5Hash.Reset()
	sh.sha256Hash.Reset()
	sh.size = 0
}

// GetHashes returns the digests of everything written so far
func (sh *StreamingHasher) GetHashes() StreamingHashes {
	return StreamingHashes{
		MD5:    hex.EncodeToString(sh.md5Hash.Sum(nil)),
		SHA256: hex.EncodeToString(sh.sha256Hash.Sum(nil)),
		Size:   sh.size,
	}
}

// CleanETag removes quotes and whitespace from an ETag
func CleanETag(etag string) string {
	etag = strings.Trim(etag, "\"")
	return strings.TrimSpace(etag)
}

// IsMultipartETag reports whether etag came from a multipart upload ("abc123-5")
func IsMultipartETag(etag string) bool {
	return strings.Contains(CleanETag(etag), "-")
}

// Verify compares what the sink reports against what was hashed locally.
// An empty or multipart checksum cannot be compared and only the size is checked.
func Verify(reportedChecksum string, reportedSize int64, hashes StreamingHashes) error {
	if reportedSize > 0 && reportedSize != hashes.Size {
		return fmt.Errorf("%w: size sink=%d local=%d", models.ErrChecksumMismatch, reportedSize, hashes.Size)
	}

	sum := strings.ToLower(CleanETag(reportedChecksum))
	if sum == "" || IsMultipartETag(sum) {
		return nil
	}
	if sum != hashes.MD5 {
		return fmt.Errorf("%w: md5 sink=%s local=%s", models.ErrChecksumMismatch, sum, hashes.MD5)
	}
	return nil
}
