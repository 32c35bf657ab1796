package config

import (
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/devlink/internal/store"
)

// DefaultDeviceClass is used when a device reports an unusable class.
const DefaultDeviceClass = store.DefaultDeviceClass

const maxClassLen = 32

var (
	validClassRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)
	invalidChars = regexp.MustCompile(`[^a-z0-9_-]+`)
	edgeDashes   = regexp.MustCompile(`^-+|-+$`)
)

// NormalizeDeviceClass turns a client-reported device type or platform
// ("Desktop", "Mac OS") into a stable lowercase token ("desktop", "mac-os").
// Empty or unusable input yields DefaultDeviceClass.
func NormalizeDeviceClass(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return DefaultDeviceClass
	}
	if validClassRe.MatchString(lower) {
		return lower
	}

	result := invalidChars.ReplaceAllString(lower, "-")
	result = edgeDashes.ReplaceAllString(result, "")
	if len(result) > maxClassLen {
		result = strings.TrimRight(result[:maxClassLen], "-")
	}
	if result == "" {
		return DefaultDeviceClass
	}
	return result
}
