package validate

import (
	"fmt"

	"git.home.luguber.info/inful/docscope/internal/document"
)

// Code identifies one diagnostic kind.
type Code string

const (
	// Reference diagnostics (warning or hard failure per document config).
	CodeLinkDocNotFound  Code = "link-doc-not-found"
	CodeLinkHashNotFound Code = "link-hash-not-found"
	CodeFragmentNotFound Code = "fragment-not-found"

	// Structural diagnostics (always hard failures for the document).
	CodeFragmentInFragment     Code = "fragment-in-fragment"
	CodeUnknownSDKFilter       Code = "if-component-unknown-sdk"
	CodeSDKNotInFrontmatter    Code = "if-component-sdk-not-in-frontmatter"
	CodeSDKNotInManifest       Code = "if-component-sdk-not-in-manifest"
	CodeDuplicateHeadingID     Code = "duplicate-heading-id"
	CodeDocMissingFromManifest Code = "doc-not-in-manifest"
)

// Severity splits diagnostics that fail the build from ones that only warn.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityFailure Severity = "failure"
)

// Diagnostic is one finding attached to a document.
type Diagnostic struct {
	Code     Code
	Doc      document.Key
	Message  string
	Severity Severity
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: [%s] %s (%s)", d.Doc, d.Code, d.Message, d.Severity)
}

// HasFailures reports whether any diagnostic is a hard failure.
func HasFailures(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityFailure {
			return true
		}
	}
	return false
}
