package device

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength = 100
	maxSlugLength = 50
	maxParams     = 20
	slugPattern   = `^[a-z0-9]+(?:-[a-z0-9]+)*$`
)

var slugRegex = regexp.MustCompile(slugPattern)

var (
	validProtocols    = toSet(AllProtocols())
	validFeatureTypes = toSet(AllFeatureTypes())
)

func toSet[T comparable](values []T) map[T]struct{} {
	set := make(map[T]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// ValidateDevice checks a device and its features before it is persisted.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: device is nil", ErrInvalidDevice)
	}
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := ValidateSlug(d.Slug); err != nil {
		return err
	}
	if d.ExternalID == "" {
		return fmt.Errorf("%w: external_id is required", ErrInvalidDevice)
	}
	if _, ok := validProtocols[d.Protocol]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidProtocol, d.Protocol)
	}
	if len(d.Params) > maxParams {
		return fmt.Errorf("%w: too many params (max %d)", ErrInvalidDevice, maxParams)
	}

	seen := make(map[FeatureType]bool, len(d.Features))
	for i := range d.Features {
		f := &d.Features[i]
		if err := ValidateFeature(f); err != nil {
			return err
		}
		if seen[f.Type] {
			return fmt.Errorf("%w: duplicate %s feature", ErrInvalidFeature, f.Type)
		}
		seen[f.Type] = true
	}

	return nil
}

// ValidateFeature checks a feature's identity, category and type.
func ValidateFeature(f *Feature) error {
	if f.ExternalID == "" {
		return fmt.Errorf("%w: external_id is required", ErrInvalidFeature)
	}
	if f.Category != CategorySwitch {
		return fmt.Errorf("%w: category %q", ErrInvalidFeature, f.Category)
	}
	if _, ok := validFeatureTypes[f.Type]; !ok {
		return fmt.Errorf("%w: type %q", ErrInvalidFeature, f.Type)
	}
	return nil
}

// ValidateName checks that a name is present and within length limits.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateSlug checks that a slug is lowercase, hyphenated and within length limits.
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: slug is required", ErrInvalidSlug)
	}
	if len(slug) > maxSlugLength {
		return fmt.Errorf("%w: slug exceeds %d characters", ErrInvalidSlug, maxSlugLength)
	}
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("%w: %q", ErrInvalidSlug, slug)
	}
	return nil
}

// GenerateSlug creates a URL-safe slug from a name.
func GenerateSlug(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastHyphen = false
		case r == ' ' || r == '-' || r == '_' || r == '.' || r == ':':
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}

// GenerateID creates a new UUID for a device or feature.
func GenerateID() string {
	return uuid.New().String()
}
