package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *DocScopeError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ValidationFailed(field, reason string) *DocScopeError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Build pipeline errors

func BuildFailed(stage string, cause error) *DocScopeError {
	return Wrap(cause, CategoryBuild, SeverityFatal, "build failed").
		WithContext("stage", stage)
}

func ManifestError(cause error) *DocScopeError {
	return Wrap(cause, CategoryConfig, SeverityFatal, "navigation manifest is invalid")
}

func ScopeResolutionFailed(conflicts int) *DocScopeError {
	return New(CategoryScope, SeverityFatal, "sdk scope resolution failed").
		WithContext("conflicts", conflicts)
}

// Content errors

func DocumentReadError(path string, cause error) *DocScopeError {
	return Wrap(cause, CategoryFileSystem, SeverityError, "failed to read document").
		WithContext("path", path)
}

func DocumentParseError(key string, cause error) *DocScopeError {
	return Wrap(cause, CategoryStructural, SeverityError, "failed to parse document").
		WithContext("document", key)
}

func FragmentNotFound(key string) *DocScopeError {
	return New(CategoryReference, SeverityError, "embedded fragment not found").
		WithContext("fragment", key)
}

// Source errors

func SourceSyncError(url string, cause error) *DocScopeError {
	return Wrap(cause, CategorySource, SeverityFatal, "content source sync failed").
		WithContext("url", url)
}
