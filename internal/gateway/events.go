package gateway

import "image"

// StreamEvent is the tagged output variant of a conversational stream. Exactly
// one of the three constructors produces each value; consumers switch on Kind
// instead of probing fields for presence.
type StreamEvent struct {
	Kind StreamEventKind

	// Text is set for KindText.
	Text string

	// Image, PNG and Seed are set for KindImage. PNG holds the provider's
	// original encoded payload.
	Image image.Image
	PNG   []byte
	Seed  int32

	// Message and Recoverable are set for KindError. A recoverable error
	// fails only the current batch item; an unrecoverable one (bad
	// credentials, client misconfiguration) aborts the whole batch.
	Message     string
	Recoverable bool
}

type StreamEventKind int

const (
	KindText StreamEventKind = iota
	KindImage
	KindError
)

func textEvent(chunk string) StreamEvent {
	return StreamEvent{Kind: KindText, Text: chunk}
}

func imageEvent(img image.Image, png []byte, seed int32) StreamEvent {
	return StreamEvent{Kind: KindImage, Image: img, PNG: png, Seed: seed}
}

func errorEvent(message string, recoverable bool) StreamEvent {
	return StreamEvent{Kind: KindError, Message: message, Recoverable: recoverable}
}
