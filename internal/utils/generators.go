package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"
)

// GenerateScanPayload returns an opaque, URL-safe payload for a ticket scan
// code. 24 random bytes keep accidental collisions out of practical reach;
// the unique constraint on scan_codes.payload catches the rest.
func GenerateScanPayload() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		// Fallback to a timestamped ID if the entropy source fails.
		return GenerateID("scan")
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// GenerateID creates a prefixed timestamp-plus-random identifier, e.g.
// "bkg_1693401600_042187".
func GenerateID(prefix string) string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("%s_%d_%06d", prefix, timestamp, randomNum.Int64())
}
