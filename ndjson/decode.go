package ndjson

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/pithecene-io/askstream/types"
)

// Wire field names.
const (
	fieldType       = "type"
	fieldContent    = "content"
	fieldURL        = "url"
	fieldDocID      = "doc_id"
	fieldMIME       = "mime"
	fieldFilename   = "filename"
	fieldSize       = "size"
	fieldContentB64 = "content_b64"
)

// Decode classifies one complete line.
//
// Returns:
//   - (nil, false): blank line, valid JSON that is not an object, or an
//     unrecognized `type`; the line produces no event
//   - (MalformedEvent, true): the line is not valid JSON
//   - (TextEvent|FileEvent|ImageEvent, true): a recognized event
//
// Only structural validity is checked. Fields with unexpected JSON types
// are treated as absent.
func Decode(line string) (types.StreamEvent, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, false
	}

	if !gjson.Valid(trimmed) {
		return types.MalformedEvent{Raw: trimmed}, true
	}

	doc := gjson.Parse(trimmed)
	if !doc.IsObject() {
		return nil, false
	}

	switch types.EventKind(stringField(doc, fieldType)) {
	case types.EventKindText:
		return types.TextEvent{Content: stringField(doc, fieldContent)}, true
	case types.EventKindFile:
		return types.FileEvent{Payload: payloadOf(doc)}, true
	case types.EventKindImage:
		return types.ImageEvent{Payload: payloadOf(doc)}, true
	default:
		return nil, false
	}
}

// payloadOf extracts the file/image fields from a decoded object.
func payloadOf(doc gjson.Result) types.Payload {
	p := types.Payload{
		URL:        stringField(doc, fieldURL),
		ContentB64: stringField(doc, fieldContentB64),
		Filename:   stringField(doc, fieldFilename),
		MIME:       stringField(doc, fieldMIME),
		DocID:      stringField(doc, fieldDocID),
	}

	if size := doc.Get(fieldSize); size.Type == gjson.Number {
		n := size.Int()
		p.Size = &n
	}

	return p
}

// stringField returns the field's value if it is a JSON string, else "".
func stringField(doc gjson.Result, key string) string {
	v := doc.Get(key)
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}
