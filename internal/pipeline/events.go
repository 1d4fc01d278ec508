package pipeline

import (
	"time"

	"git.home.luguber.info/inful/docscope/internal/document"
	"git.home.luguber.info/inful/docscope/internal/validate"
)

// Event is a domain event published by the pipeline and consumed by handlers.
type Event interface{ Name() string }

// Event names used in the pipeline.
const (
	EventBuildStarted      = "BuildStarted"
	EventDocumentProcessed = "DocumentProcessed"
	EventBuildCompleted    = "BuildCompleted"
)

// BuildStarted is published when a build begins.
type BuildStarted struct {
	BuildID string
	Full    bool
}

func (BuildStarted) Name() string { return EventBuildStarted }

// DocumentProcessed is published after each document's validation pass.
type DocumentProcessed struct {
	BuildID     string
	Doc         document.Key
	Diagnostics []validate.Diagnostic
	Failed      bool
}

func (DocumentProcessed) Name() string { return EventDocumentProcessed }

// BuildCompleted is published once per build with the final summary.
type BuildCompleted struct {
	BuildID  string
	Summary  *Summary
	Duration time.Duration
}

func (BuildCompleted) Name() string { return EventBuildCompleted }
