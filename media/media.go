// Package media converts between text and image content at the chat
// boundary. Messages travel as text either way; images are carried as
// base64 and turned back into text before they re-enter the transcript.
package media

import "context"

// Generator turns a text prompt into a base64-encoded image.
type Generator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// Transcriber extracts the text visible in a base64-encoded image.
type Transcriber interface {
	ExtractText(ctx context.Context, imageBase64 string) (string, error)
}
