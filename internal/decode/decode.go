// Package decode turns the JSON payloads returned by remote endpoints into typed values.
//
// Each payload shape has its own decode function so a failure can be attributed
// to the schema that was expected, separately from any transport failure.
package decode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
)

// Schema names the expected shape of a payload
type Schema string

const (
	SchemaSourceCatalog   Schema = "source catalog"
	SchemaCertificatePack Schema = "certificate pack"
	SchemaCredits         Schema = "credits"
)

// DecodeError is returned when a payload does not match the expected schema.
// The message never contains the payload itself.
type DecodeError struct {
	Schema Schema
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: payload does not match the %s schema", e.Schema)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func newDecodeError(schema Schema, err error) error {
	log.WithFields(log.Fields{
		"schema": string(schema),
	}).WithError(err).Error("failed to decode response")
	return &DecodeError{Schema: schema, Err: err}
}

// Date is an ISO-8601 timestamp that also accepts a bare calendar date
type Date struct {
	time.Time
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("invalid ISO-8601 date %q", s)
}

// MarshalJSON implements json.Marshaler
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(time.RFC3339))
}

func unmarshal(schema Schema, data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return newDecodeError(schema, err)
	}
	return nil
}
