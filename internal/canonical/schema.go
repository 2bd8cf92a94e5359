package canonical

import (
	"fmt"
	"strings"
)

// RecordType identifies the kind of evidence a metadata document describes.
type RecordType int

// Record types with a required-field schema.
const (
	RecordTypeDataset RecordType = iota + 1
	RecordTypeModel
	RecordTypeInference
	RecordTypeAnchor
)

var recordTypeNames = map[RecordType]string{
	RecordTypeDataset:   "dataset",
	RecordTypeModel:     "model",
	RecordTypeInference: "inference",
	RecordTypeAnchor:    "anchor",
}

// requiredFields is the single source of truth for per-type schemas.
var requiredFields = map[RecordType][]string{
	RecordTypeDataset:   {"dataset_id", "dataset_hash", "source", "timestamp"},
	RecordTypeModel:     {"model_id", "model_hash", "training_dataset_hash", "timestamp"},
	RecordTypeInference: {"inference_id", "model_id", "input_hash", "output_hash", "timestamp"},
	RecordTypeAnchor:    {"root", "policy_id", "schema_version", "timestamp"},
}

// ParseRecordType maps a wire name to a RecordType.
func ParseRecordType(s string) (RecordType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for rt, n := range recordTypeNames {
		if n == name {
			return rt, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRecordType, s)
}

func (r RecordType) String() string {
	if n, ok := recordTypeNames[r]; ok {
		return n
	}
	return fmt.Sprintf("RecordType(%d)", int(r))
}

// MarshalText implements encoding.TextMarshaler.
func (r RecordType) MarshalText() ([]byte, error) {
	n, ok := recordTypeNames[r]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRecordType, int(r))
	}
	return []byte(n), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RecordType) UnmarshalText(text []byte) error {
	rt, err := ParseRecordType(string(text))
	if err != nil {
		return err
	}
	*r = rt
	return nil
}

// RequiredFields returns a copy of the required-field set for the record type.
func RequiredFields(rt RecordType) ([]string, error) {
	fields, ok := requiredFields[rt]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRecordType, rt)
	}
	out := make([]string, len(fields))
	copy(out, fields)
	return out, nil
}

// ValidateRequiredFields checks that every required field for the record type is present.
// A field counts as missing when the key is absent, null or an empty string. All missing
// fields are reported, in schema order.
func ValidateRequiredFields(metadata map[string]any, rt RecordType) error {
	fields, err := RequiredFields(rt)
	if err != nil {
		return err
	}

	var missing []string
	for _, f := range fields {
		v, ok := metadata[f]
		if !ok || v == nil {
			missing = append(missing, f)
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldsError{RecordType: rt, Fields: missing}
	}
	return nil
}
