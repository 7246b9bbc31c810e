package format

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
)

// jsonFormatter converts a framed XML batch into a JSON array of one flat object per
// event, each mapping the direct child element names to their text content
//
// The decode doubles as the batch-level well-formedness check: any malformed XML is
// reported as an error and the caller uploads the raw framed batch instead.
type jsonFormatter struct{}

func (f *jsonFormatter) Format(framed []byte) ([]byte, string, error) {
	events, err := parseEventFields(framed)
	if err != nil {
		return nil, "", fmt.Errorf("parse batch: %w", err)
	}
	converted, merr := json.Marshal(events)
	if merr != nil {
		return nil, "", fmt.Errorf("marshal batch: %w", merr)
	}
	return converted, f.Extension(), nil
}

func (f *jsonFormatter) Extension() string {
	return "json"
}

func (f *jsonFormatter) ContentType() string {
	return "application/json"
}

// parseEventFields walks the <EVENTS> container and collects field name to text for the
// direct children of every <EVENT> element; text after a nested element is ignored,
// nested elements themselves are skipped
func parseEventFields(framed []byte) ([]map[string]string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(framed))

	events := make([]map[string]string, 0, 16)
	var current map[string]string
	var fieldName string
	var fieldText strings.Builder
	fieldNested := false
	depth := 0

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := token.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 1:
				if t.Name.Local != "EVENTS" {
					return nil, fmt.Errorf("root element is not EVENTS: %s", t.Name.Local)
				}
			case 2:
				if t.Name.Local == "EVENT" {
					current = make(map[string]string, 8)
				}
			case 3:
				if current != nil {
					fieldName = t.Name.Local
					fieldText.Reset()
					fieldNested = false
				}
			default:
				fieldNested = true
			}
		case xml.EndElement:
			switch depth {
			case 2:
				if current != nil {
					events = append(events, current)
					current = nil
				}
			case 3:
				if current != nil {
					current[fieldName] = strings.TrimSpace(fieldText.String())
				}
			}
			depth--
		case xml.CharData:
			if depth == 3 && current != nil && !fieldNested {
				fieldText.Write(t)
			}
		}
	}

	return events, nil
}
