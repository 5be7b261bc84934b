package transfer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Encode writes doc to w. NDJSON carries nodes only, one per line.
func Encode(w io.Writer, doc Document, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatNDJSON:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for _, n := range doc.Nodes {
			if err := enc.Encode(n); err != nil {
				return fmt.Errorf("encode node %s: %w", n.ID, err)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown format %q", format)
}

// Decode reads a document from r. JSON numbers keep integer precision.
func Decode(r io.Reader, format Format) (Document, error) {
	var doc Document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return Document{}, fmt.Errorf("decode json: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			return Document{}, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatNDJSON:
		doc.Version = DocumentVersion
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		line := 0
		for sc.Scan() {
			line++
			raw := bytes.TrimSpace(sc.Bytes())
			if len(raw) == 0 {
				continue
			}
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			var n NodeRecord
			if err := dec.Decode(&n); err != nil {
				return Document{}, fmt.Errorf("decode ndjson line %d: %w", line, err)
			}
			doc.Nodes = append(doc.Nodes, n)
		}
		if err := sc.Err(); err != nil {
			return Document{}, fmt.Errorf("read ndjson: %w", err)
		}
	default:
		return Document{}, fmt.Errorf("unknown format %q", format)
	}
	if doc.Version != DocumentVersion {
		return Document{}, fmt.Errorf("unsupported document version %d (expected %d)", doc.Version, DocumentVersion)
	}
	return doc, nil
}
