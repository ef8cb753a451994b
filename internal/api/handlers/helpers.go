package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// displayNamePattern allows letters, numbers, punctuation, symbols and spaces
var displayNamePattern = regexp.MustCompile(`^[\p{L}\p{N}\p{P}\p{S}\p{Zs}]+$`)

// validDisplayName trims and validates a player display name.
// Returns the cleaned name and whether it is acceptable.
func validDisplayName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 50 {
		return "", false
	}
	if !displayNamePattern.MatchString(name) {
		return "", false
	}
	return name, true
}

// generateQueueToken returns a short random hex token used as the external queue token
func generateQueueToken() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("qt_%d", time.Now().UnixNano()%1000000)
	}
	return hex.EncodeToString(b)
}
