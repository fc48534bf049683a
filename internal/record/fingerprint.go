package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Fingerprint is the hex SHA-256 of the canonical encoding. It is used as
// the ETag of a record and to detect re-submission of identical content.
func Fingerprint(v Value) (string, error) {
	raw, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return FingerprintBytes(raw), nil
}

// FingerprintBytes hashes bytes that are already canonical.
func FingerprintBytes(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
