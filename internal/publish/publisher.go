// Package publish republishes CDO records as individual messages tagged with
// their record kind.
package publish

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/cdoweather/cdoweather/internal/noaa"
)

// AttributeRecordType is the message attribute carrying the record kind.
const AttributeRecordType = "record_type"

// RecordKind classifies a published record.
type RecordKind string

// Record kinds.
const (
	KindDatatype    RecordKind = "datatype"
	KindStation     RecordKind = "station"
	KindMeasurement RecordKind = "measurement"
)

// Valid reports whether k is a known record kind.
func (k RecordKind) Valid() bool {
	switch k {
	case KindDatatype, KindStation, KindMeasurement:
		return true
	}
	return false
}

// ErrUnknownKind is returned when publishing with an unrecognised record kind.
var ErrUnknownKind = errors.New("unknown record kind")

// Publisher sends one record per message and waits for the broker to confirm it.
type Publisher interface {
	Publish(ctx context.Context, kind RecordKind, record noaa.Record) (string, error)
}

// PublishError reports a record that was not confirmed by the broker.
type PublishError struct {
	Kind RecordKind
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publishing %s record: %v", e.Kind, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Encode serializes a record as indented JSON with keys sorted at every depth,
// so identical records always produce identical payloads.
func Encode(record noaa.Record) ([]byte, error) {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return data, nil
}

func attributes(kind RecordKind) map[string]string {
	return map[string]string{AttributeRecordType: string(kind)}
}
