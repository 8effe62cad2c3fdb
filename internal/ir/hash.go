package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed digests.
// Version suffix enables future algorithm migration.
const (
	DomainOperation = "synq/operation/v1"
	DomainBatch     = "synq/batch/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// OperationDigest computes the content digest of a single operation.
// Two operations with equal name and arguments have equal digests, so the
// digest identifies content, not an occurrence in a queue.
func OperationDigest(op Operation) (string, error) {
	canonical, err := MarshalCanonical(op)
	if err != nil {
		return "", fmt.Errorf("OperationDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainOperation, canonical), nil
}

// BatchDigest computes the digest of an ordered batch. Reordering the batch
// changes the digest.
func BatchDigest(ops []Operation) (string, error) {
	canonical, err := MarshalCanonical(ops)
	if err != nil {
		return "", fmt.Errorf("BatchDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainBatch, canonical), nil
}

// ShortDigest returns the first 12 hex characters of OperationDigest, or
// "invalid" when the operation cannot be encoded. Used in logs.
func ShortDigest(op Operation) string {
	d, err := OperationDigest(op)
	if err != nil {
		return "invalid"
	}
	return d[:12]
}
