// Package fieldpath extracts values from loosely structured third-party JSON
// by probing an ordered list of candidate paths.
package fieldpath

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Path is a dotted location inside a JSON object, e.g. "Data.TransactionId".
type Path string

func (p Path) segments() []string {
	return strings.Split(string(p), ".")
}

// Aliases is the ordered list of paths tried for one logical field.
type Aliases []Path

// Processor payload aliases. Order is priority: the first present, non-empty
// value wins.
var (
	ClientReference = Aliases{"ClientReference", "clientReference", "Data.ClientReference", "data.clientReference"}
	TransactionID   = Aliases{"TransactionId", "transactionId", "Data.TransactionId", "data.transactionId"}
	ResponseCode    = Aliases{"ResponseCode", "responseCode", "Data.ResponseCode", "data.responseCode"}
	Status          = Aliases{"Status", "status", "Data.Status", "data.status"}
)

// Document is a decoded JSON object.
type Document map[string]any

// Decode parses raw into a Document. Numbers are kept as json.Number so they
// can be rendered without float formatting.
func Decode(raw []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("decode payload: expected a json object")
	}
	return doc, nil
}

// Lookup returns the value at p, if every segment resolves.
func (d Document) Lookup(p Path) (any, bool) {
	var current any = map[string]any(d)
	for _, segment := range p.segments() {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[segment]
		if !ok || current == nil {
			return nil, false
		}
	}
	return current, true
}

// String probes aliases in order and returns the first scalar rendered as a
// trimmed, non-empty string.
func (d Document) String(aliases Aliases) (string, bool) {
	for _, p := range aliases {
		value, ok := d.Lookup(p)
		if !ok {
			continue
		}
		if s, ok := scalarString(value); ok {
			return s, true
		}
	}
	return "", false
}

func scalarString(value any) (string, bool) {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case json.Number:
		s = v.String()
	case bool:
		s = fmt.Sprintf("%t", v)
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
