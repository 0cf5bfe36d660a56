// conf/validate.go

package conf

import (
	"fmt"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// validSelectionMethods are the recognized selection strategies.
var validSelectionMethods = map[string]bool{
	"quality":    true,
	"clustering": true,
	"stratified": true,
	"random":     true,
}

// validLogLevels are the recognized logging levels.
var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validPhotoSizes are the photo variants the source serves.
var validPhotoSizes = map[string]bool{
	"square":   true,
	"small":    true,
	"medium":   true,
	"large":    true,
	"original": true,
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateMainSettings(&settings.Main); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateSourceSettings(&settings.Source); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateFetchSettings(&settings.Fetch); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateDedupSettings(&settings.Dedup); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateSelectionSettings(&settings.Selection); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateQualitySettings(&settings.Quality); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateDownloadSettings(&settings.Download); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateMainSettings(settings *MainSettings) error {
	var errs []string

	if settings.DataDir == "" {
		errs = append(errs, "main datadir must not be empty")
	}
	if !validLogLevels[strings.ToLower(settings.LogLevel)] {
		errs = append(errs, fmt.Sprintf("main loglevel %q is not one of trace, debug, info, warn, error", settings.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("main settings errors: %v", errs)
	}
	return nil
}

func validateSourceSettings(settings *SourceSettings) error {
	var errs []string

	if settings.BaseURL == "" {
		errs = append(errs, "source baseurl must not be empty")
	}
	if settings.RateLimitPerMinute < 1 {
		errs = append(errs, "source ratelimitperminute must be at least 1")
	}
	if settings.PerPage < 1 || settings.PerPage > 200 {
		errs = append(errs, fmt.Sprintf("source perpage must be between 1 and 200, got %d", settings.PerPage))
	}
	if settings.MaxResults < 0 {
		errs = append(errs, "source maxresults must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("source settings errors: %v", errs)
	}
	return nil
}

func validateFetchSettings(settings *FetchSettings) error {
	var errs []string

	if settings.CenterLat < -90 || settings.CenterLat > 90 {
		errs = append(errs, "fetch centerlat must be between -90 and 90")
	}
	if settings.CenterLon < -180 || settings.CenterLon > 180 {
		errs = append(errs, "fetch centerlon must be between -180 and 180")
	}
	if settings.RadiusKM < 0 {
		errs = append(errs, "fetch radiuskm must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("fetch settings errors: %v", errs)
	}
	return nil
}

func validateDedupSettings(settings *DedupSettings) error {
	var errs []string

	if settings.SpatialThresholdM <= 0 {
		errs = append(errs, "dedup spatialthresholdm must be greater than 0")
	}
	if settings.TemporalThresholdDays <= 0 {
		errs = append(errs, "dedup temporalthresholddays must be greater than 0")
	}
	if settings.MinClusterSize < 1 {
		errs = append(errs, "dedup minclustersize must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("dedup settings errors: %v", errs)
	}
	return nil
}

func validateSelectionSettings(settings *SelectionSettings) error {
	var errs []string

	if !validSelectionMethods[settings.Method] {
		errs = append(errs, fmt.Sprintf("selection method %q is not one of quality, clustering, stratified, random", settings.Method))
	}
	if settings.TargetPerSpecies < 1 {
		errs = append(errs, "selection targetperspecies must be at least 1")
	}
	if settings.MinPerSpecies < 0 {
		errs = append(errs, "selection minperspecies must not be negative")
	}
	if settings.MinPerSpecies > settings.TargetPerSpecies {
		errs = append(errs, fmt.Sprintf("selection minperspecies (%d) must not exceed targetperspecies (%d)",
			settings.MinPerSpecies, settings.TargetPerSpecies))
	}

	if len(errs) > 0 {
		return fmt.Errorf("selection settings errors: %v", errs)
	}
	return nil
}

func validateQualitySettings(settings *QualitySettings) error {
	var errs []string

	if settings.Workers < 1 {
		errs = append(errs, "quality workers must be at least 1")
	}
	if settings.SidecarSuffix == "" {
		errs = append(errs, "quality sidecarsuffix must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("quality settings errors: %v", errs)
	}
	return nil
}

func validateDownloadSettings(settings *DownloadSettings) error {
	var errs []string

	if settings.Workers < 1 {
		errs = append(errs, "download workers must be at least 1")
	}
	if !validPhotoSizes[settings.Size] {
		errs = append(errs, fmt.Sprintf("download size %q is not one of square, small, medium, large, original", settings.Size))
	}

	if len(errs) > 0 {
		return fmt.Errorf("download settings errors: %v", errs)
	}
	return nil
}
