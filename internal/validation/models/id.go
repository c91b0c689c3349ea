package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

const (
	validationIDPrefix = "val_"
	idTimeLayout       = "20060102150405"
	hashLength         = 8
)

// ContentHash returns the reproducible part of a validation id. Map keys are
// sorted by encoding/json, so identical content always hashes identically.
func ContentHash(payload any) string {
	encoded, err := json.Marshal(payload)
	if err != nil {
		encoded = []byte(fmt.Sprintf("%#v", payload))
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])[:hashLength]
}

// NewValidationID formats val_<timestamp>_<content hash>.
func NewValidationID(payload any, now time.Time) string {
	return validationIDPrefix + now.UTC().Format(idTimeLayout) + "_" + ContentHash(payload)
}
