package store

import "fmt"

// MaxIDLength is the maximum allowed length for user and device identifiers.
// Matches the VARCHAR(255) columns in the schema.
const MaxIDLength = 255

// ValidateID checks that an identifier does not exceed MaxIDLength.
func ValidateID(kind, id string) error {
	if len(id) > MaxIDLength {
		return fmt.Errorf("%s identifier too long: %d chars (max %d)", kind, len(id), MaxIDLength)
	}
	return nil
}
