package serializer

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
)

// JSONSerializer writes rows as a single JSON array.
type JSONSerializer struct{}

func (JSONSerializer) ContentType() string {
	return "application/json"
}

func (JSONSerializer) Encode(rows any, output io.Writer) error {
	v := reflect.ValueOf(rows)
	if v.Kind() != reflect.Slice {
		return fmt.Errorf("json: expected a slice, got %T", rows)
	}
	if v.IsNil() {
		rows = []struct{}{}
	}

	enc := json.NewEncoder(output)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
