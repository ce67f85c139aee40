package verification

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrUnknownKind is returned for a record whose type is not a known kind.
	ErrUnknownKind = errors.New("unknown verification record kind")
	// ErrInvalidRecord is returned for a record that fails structural checks.
	ErrInvalidRecord = errors.New("invalid verification record")
)

var validate = validator.New()

// Validate decodes a record received from outside, such as one read back
// from storage, and checks that it is structurally sound.
func Validate(data []byte) (Record, error) {
	var envelope struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	var rec Record
	switch envelope.Type {
	case KindDisruption:
		var d Disruption
		if err := decode(data, &d); err != nil {
			return nil, err
		}
		rec = d
	case KindVehicleModification:
		var v VehicleModification
		if err := decode(data, &v); err != nil {
			return nil, err
		}
		rec = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, envelope.Type)
	}
	return rec, nil
}

// IsValid reports whether data is a valid record.
func IsValid(data []byte) bool {
	_, err := Validate(data)
	return err == nil
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return nil
}
