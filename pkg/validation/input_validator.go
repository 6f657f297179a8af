package validation

import (
	"fmt"
	"path"
	"strings"

	apperrors "github.com/kevinb28-21/CropView-sub001/internal/errors"
	"github.com/kevinb28-21/CropView-sub001/pkg/models"
)

// InputValidator checks request fields before a capture enters the
// processing flow
type InputValidator struct{}

// NewInputValidator creates a new input validator
func NewInputValidator() *InputValidator {
	return &InputValidator{}
}

// ValidateChannels accepts the two supported capture layouts, RGB and
// RGB plus NIR
func (v *InputValidator) ValidateChannels(channels int) error {
	if channels != 3 && channels != 4 {
		return apperrors.NewValidationError(
			fmt.Sprintf("channels must be 3 or 4, got %d", channels), nil)
	}
	return nil
}

// ValidateGPS checks that a capture location is a real coordinate pair
func (v *InputValidator) ValidateGPS(gps *models.GPSPoint) error {
	if gps == nil {
		return nil
	}
	if gps.Latitude < -90 || gps.Latitude > 90 {
		return apperrors.NewValidationError(
			fmt.Sprintf("latitude must be in [-90,90], got %g", gps.Latitude), nil)
	}
	if gps.Longitude < -180 || gps.Longitude > 180 {
		return apperrors.NewValidationError(
			fmt.Sprintf("longitude must be in [-180,180], got %g", gps.Longitude), nil)
	}
	return nil
}

// ValidateFilename rejects empty names and names carrying path components
func (v *InputValidator) ValidateFilename(filename string) error {
	name := strings.TrimSpace(filename)
	if name == "" {
		return apperrors.NewValidationError("filename cannot be empty", nil)
	}
	if name != path.Base(name) || name == "." || name == ".." {
		return apperrors.NewValidationError(
			fmt.Sprintf("filename %q must not contain path components", filename), nil)
	}
	return nil
}
