package ndjson

import (
	"fmt"
	"regexp"

	"github.com/pithecene-io/askstream/types"
)

// imageMarkerPattern matches embedded image references such as [[IMAGE:fig-1]].
var imageMarkerPattern = regexp.MustCompile(`\[\[IMAGE:(.*?)\]\]`)

// Fragment field patterns for near-miss JSON.
var (
	fragmentTypePattern  = regexp.MustCompile(`"type":\s*"([^"]+)"`)
	fragmentDocIDPattern = regexp.MustCompile(`"doc_id":\s*"([^"]+)"`)
	fragmentURLPattern   = regexp.MustCompile(`"url":\s*"([^"]+)"`)
)

// Fragment is what could be pulled out of an almost-valid JSON line.
// It is diagnostic only and never feeds the transcript.
type Fragment struct {
	Type  string `json:"type"`
	DocID string `json:"doc_id,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Recovered is the outcome of scanning a malformed line.
type Recovered struct {
	// Markers holds the identifier of every image marker found, in order.
	Markers []string
	// Fragment is set when no marker was found and a `type` field could be
	// extracted.
	Fragment *Fragment
}

// Recover scans a malformed line for recoverable signal.
// Marker detection takes precedence: fragment extraction only runs when the
// line carries no image marker.
func Recover(raw string) Recovered {
	markers := FindImageMarkers(raw)
	if len(markers) > 0 {
		return Recovered{Markers: markers}
	}

	if frag, ok := RecoverFragment(raw); ok {
		return Recovered{Fragment: &frag}
	}

	return Recovered{}
}

// Diagnostics returns one informational assistant message per marker.
// These are the only recovery results merged into the transcript.
func (r Recovered) Diagnostics() []types.Message {
	if len(r.Markers) == 0 {
		return nil
	}
	msgs := make([]types.Message, 0, len(r.Markers))
	for _, id := range r.Markers {
		msgs = append(msgs, types.NewAssistantText("warning", MarkerNotice(id)))
	}
	return msgs
}

// MarkerNotice is the text of the diagnostic emitted for a recovered marker.
func MarkerNotice(id string) string {
	return fmt.Sprintf("ℹ️ Detected image reference: %s but data was incomplete", id)
}

// FindImageMarkers returns the identifiers of all image markers in raw.
func FindImageMarkers(raw string) []string {
	matches := imageMarkerPattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m[1])
	}
	return ids
}

// RecoverFragment extracts type, doc_id and url from near-miss JSON.
// Returns false unless a type could be found.
func RecoverFragment(raw string) (Fragment, bool) {
	typeMatch := fragmentTypePattern.FindStringSubmatch(raw)
	if typeMatch == nil {
		return Fragment{}, false
	}

	frag := Fragment{Type: typeMatch[1]}
	if m := fragmentDocIDPattern.FindStringSubmatch(raw); m != nil {
		frag.DocID = m[1]
	}
	if m := fragmentURLPattern.FindStringSubmatch(raw); m != nil {
		frag.URL = m[1]
	}
	return frag, true
}
