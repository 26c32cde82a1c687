package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainOccurrence separates ledger entry hashes from any other hash space.
// The version suffix leaves room for a future algorithm change.
const DomainOccurrence = "noticeboard/occurrence/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// OccurrenceID computes the content-addressed ID of the ledger entry for
// (notificationID, date). The same pair always yields the same ID.
func OccurrenceID(notificationID string, date Date) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"notification_id": notificationID,
		"occurrence_date": date.String(),
	})
	if err != nil {
		return "", fmt.Errorf("OccurrenceID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainOccurrence, canonical), nil
}
