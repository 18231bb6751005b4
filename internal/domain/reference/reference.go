// Package reference encodes cross-entity references as record URLs and
// decodes them back to bare record ids.
package reference

import (
	"regexp"
	"strings"
)

// IDLength is the length of a record id in hex characters.
const IDLength = 24

var (
	trailingID = regexp.MustCompile(`(?i)([a-f0-9]{24})$`)
	bareID     = regexp.MustCompile(`(?i)^[a-f0-9]{24}$`)
)

// Codec builds record URLs below a fixed API base.
type Codec struct {
	BaseURL string
}

// NewCodec creates a Codec for the given API base URL.
func NewCodec(baseURL string) Codec {
	return Codec{BaseURL: strings.TrimRight(baseURL, "/")}
}

// Encode returns the URL of recordID in the collection identified by appID.
// PRE: none
// POST: Returns BaseURL + "/apps/{appID}/records/{recordID}"
func (c Codec) Encode(appID, recordID string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/apps/" + appID + "/records/" + recordID
}

// Decode extracts the trailing record id from a reference URL.
// Only the trailing hex run is inspected, so the URL's path does not tell
// which collection the id belongs to.
// PRE: none
// POST: Returns (id, true) when url ends in 24 hex characters, ("", false) otherwise
func Decode(url string) (string, bool) {
	if url == "" {
		return "", false
	}
	m := trailingID.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsID reports whether s is a bare record id.
func IsID(s string) bool {
	return bareID.MatchString(s)
}
