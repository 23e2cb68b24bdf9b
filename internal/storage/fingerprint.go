package storage

import (
	"fmt"

	"github.com/minio/highwayhash"
)

var fingerprintKey = []byte("rfMockupCreator.catalog.key.0001")

// Fingerprint returns a stable 64-bit content hash rendered as hex, used to
// compare the same resource across catalogued runs.
func Fingerprint(data []byte) (string, error) {
	h, err := highwayhash.New64(fingerprintKey)
	if err != nil {
		return "", fmt.Errorf("init hash: %w", err)
	}
	if _, err := h.Write(data); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
