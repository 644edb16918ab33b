// Package serializer encodes already-shaped rows for export.
package serializer

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Format names an export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

var serializers = make(Serializers)

type Serializers map[Format]Serializer

// Serializer is the interface that wraps the basic export methods
type Serializer interface {
	// ContentType is the MIME type of the encoded output.
	ContentType() string

	// Encode writes rows, which must be a slice, to output.
	Encode(rows any, output io.Writer) error
}

// Register registers a serializer for a format
func Register(format Format, serializer Serializer) {
	serializers[format] = serializer
}

// ParseFormat maps a query value to a Format. Empty selects CSV.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

func Lookup(format Format) (Serializer, error) {
	if s, ok := serializers[format]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func Encode(format Format, rows any, output io.Writer) error {
	s, err := Lookup(format)
	if err != nil {
		return err
	}
	return s.Encode(rows, output)
}

// Filename returns an attachment name like "users-20250301.csv".
func Filename(base string, format Format, stamp string) string {
	return fmt.Sprintf("%s-%s.%s", base, stamp, format)
}

func init() {
	Register(FormatCSV, CSVSerializer{})
	Register(FormatJSON, JSONSerializer{})
}
