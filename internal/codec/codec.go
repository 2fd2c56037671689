// Package codec encodes the records that adapters write as opaque values.
package codec

import "encoding/json"

type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSON is compact JSON. Payloads are already JSON and stay byte-identical
// through a round trip, so checksums still verify.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSON) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

// Indented is JSON for files meant to be read by people.
type Indented struct{}

func (Indented) Marshal(v any) ([]byte, error)   { return json.MarshalIndent(v, "", "  ") }
func (Indented) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }
