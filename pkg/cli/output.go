package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// OutputFormat selects how one-shot commands render their results.
type OutputFormat string

const (
	// FormatText renders human-readable output. The default.
	FormatText OutputFormat = "text"
	// FormatJSON renders machine-readable JSON, one document per result.
	FormatJSON OutputFormat = "json"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case FormatText, FormatJSON:
		return OutputFormat(s), nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// Formatter renders command results to bytes or a writer.
type Formatter interface {
	Format(data interface{}) ([]byte, error)
	FormatTo(w io.Writer, data interface{}) error
}

// TextFormatter renders results with %v formatting. Commands with richer
// text output format it themselves and bypass the formatter.
type TextFormatter struct{}

func (f *TextFormatter) Format(data interface{}) ([]byte, error) {
	return []byte(fmt.Sprintf("%v\n", data)), nil
}

func (f *TextFormatter) FormatTo(w io.Writer, data interface{}) error {
	_, err := fmt.Fprintf(w, "%v\n", data)
	return err
}

// JSONFormatter renders results as JSON, indented when Indent is set.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) Format(data interface{}) ([]byte, error) {
	if f.Indent {
		return json.MarshalIndent(data, "", "  ")
	}
	return json.Marshal(data)
}

func (f *JSONFormatter) FormatTo(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	if f.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(data)
}

// NewFormatter returns the formatter for a format. Unknown formats fall
// back to text; validate user input with ParseFormat first.
func NewFormatter(format OutputFormat) Formatter {
	if format == FormatJSON {
		return &JSONFormatter{Indent: true}
	}
	return &TextFormatter{}
}
