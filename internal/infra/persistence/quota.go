// Package persistence holds helpers shared by the document media.
package persistence

import (
	"fmt"

	"inventario/pkg/domain"
)

// DefaultQuotaBytes is the per-origin budget of the browser storage the
// document format was designed for.
const DefaultQuotaBytes = 5 << 20

// CheckQuota rejects a write that would bring the medium's total usage above
// limit. used excludes the bytes currently held under the key being written.
// A limit of zero or less disables the check.
func CheckQuota(limit, used int64, key string, payload []byte) error {
	if limit <= 0 {
		return nil
	}
	next := used + int64(len(key)) + int64(len(payload))
	if next > limit {
		return domain.Wrap(domain.CodeQuotaExceeded, fmt.Sprintf("write %s", key),
			fmt.Errorf("%d bytes exceeds quota of %d", next, limit))
	}
	return nil
}
