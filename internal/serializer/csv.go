package serializer

import (
	"encoding/csv"
	"fmt"
	"io"
	"reflect"
)

// Record is a row that knows its CSV shape.
type Record interface {
	CSVHeader() []string
	CSVRecord() []string
}

// CSVSerializer writes a slice of Records with a header row. An empty
// slice yields the header of the element type when it can be derived.
type CSVSerializer struct{}

func (CSVSerializer) ContentType() string {
	return "text/csv; charset=utf-8"
}

func (CSVSerializer) Encode(rows any, output io.Writer) error {
	v := reflect.ValueOf(rows)
	if v.Kind() != reflect.Slice {
		return fmt.Errorf("csv: expected a slice, got %T", rows)
	}

	w := csv.NewWriter(output)
	header := headerFor(v.Type().Elem())
	if header != nil {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("csv: writing header: %w", err)
		}
	}

	for i := 0; i < v.Len(); i++ {
		rec, ok := v.Index(i).Interface().(Record)
		if !ok {
			return fmt.Errorf("csv: %s does not implement Record", v.Index(i).Type())
		}
		if header == nil {
			header = rec.CSVHeader()
			if err := w.Write(header); err != nil {
				return fmt.Errorf("csv: writing header: %w", err)
			}
		}
		if err := w.Write(rec.CSVRecord()); err != nil {
			return fmt.Errorf("csv: writing row %d: %w", i, err)
		}
	}

	w.Flush()
	return w.Error()
}

// headerFor builds the header from a zero value of the element type.
func headerFor(t reflect.Type) []string {
	var zero reflect.Value
	switch {
	case t.Kind() == reflect.Pointer:
		zero = reflect.New(t.Elem())
	case t.Kind() != reflect.Interface:
		zero = reflect.New(t)
	default:
		return nil
	}
	if rec, ok := zero.Interface().(Record); ok {
		return rec.CSVHeader()
	}
	return nil
}
