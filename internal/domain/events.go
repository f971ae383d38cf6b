package domain

// EventKind discriminates the tagged event variants surfaced to the
// presentation layer. An Event carries exactly the fields its kind names; the
// zero values of the others are meaningless and must not be interpreted as
// presence or absence of content.
type EventKind string

const (
	// EventTextDelta carries an incremental text chunk from the primary request.
	EventTextDelta EventKind = "text_delta"
	// EventImageProduced carries one generated image with seed and batch index.
	EventImageProduced EventKind = "image_produced"
	// EventProgress carries a human-readable status line ("Generating 2/4...").
	EventProgress EventKind = "progress"
	// EventBatchFinished terminates one batch; emitted exactly once per batch.
	EventBatchFinished EventKind = "batch_finished"
	// EventNotice carries a user-visible warning that is not a hard failure
	// (for example a batch that produced zero images).
	EventNotice EventKind = "notice"
	// EventFatalError carries a setup-level failure that aborted the operation.
	EventFatalError EventKind = "fatal_error"
)

// Event is one unit of the ordered stream the session controller exposes.
type Event struct {
	Kind     EventKind
	Text     string
	Artifact *Artifact
}

func TextDeltaEvent(chunk string) Event {
	return Event{Kind: EventTextDelta, Text: chunk}
}

func ImageProducedEvent(a Artifact) Event {
	return Event{Kind: EventImageProduced, Artifact: &a}
}

func ProgressEvent(msg string) Event {
	return Event{Kind: EventProgress, Text: msg}
}

func BatchFinishedEvent() Event {
	return Event{Kind: EventBatchFinished}
}

func NoticeEvent(msg string) Event {
	return Event{Kind: EventNotice, Text: msg}
}

func FatalErrorEvent(msg string) Event {
	return Event{Kind: EventFatalError, Text: msg}
}
