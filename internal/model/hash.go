package model

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

// Domain prefixes for content-addressed identity.
const (
	DomainFile    = "gigrank/file/v1"
	DomainKey     = "gigrank/key/v1"
	DomainPayload = "gigrank/payload/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FileHash is the content hash recorded for an ingested export file.
func FileHash(content []byte) string {
	return hashWithDomain(DomainFile, content)
}

// PayloadHash identifies a run payload body.
func PayloadHash(body []byte) string {
	return hashWithDomain(DomainPayload, body)
}

// FallbackKey derives a 20 hex character key from identifying text when a
// record carries no usable URL. Parts are lower-cased and joined with '|'.
func FallbackKey(parts ...string) string {
	lowered := make([]string, len(parts))
	for i, p := range parts {
		lowered[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return hashWithDomain(DomainKey, []byte(strings.Join(lowered, "|")))[:20]
}

var leadingInt = regexp.MustCompile(`\d+`)

// LeadingInt returns the first integer found in s, or 0.
func LeadingInt(s string) int {
	m := leadingInt.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}
