package validation

import (
	"encoding/base64"
	"fmt"

	validation "github.com/jellydator/validation"
)

// Base64Key validates that a standard base64 string decodes to exactly size bytes.
// Empty strings pass so Required can be combined with it.
func Base64Key(size int) validation.Rule {
	return validation.By(func(value interface{}) error {
		s, ok := value.(string)
		if !ok {
			return validation.NewError("validation_base64_type", "must be a string")
		}
		if s == "" {
			return nil
		}
		n := base64.StdEncoding.DecodedLen(len(s))
		buf := make([]byte, n)
		decoded, err := base64.StdEncoding.Decode(buf, []byte(s))
		switch {
		case err != nil:
			return validation.NewError("validation_base64", "must be valid base64-encoded data")
		case decoded != size:
			return validation.NewError("validation_base64_key_size", fmt.Sprintf("must decode to exactly %d bytes", size))
		}
		return nil
	})
}
