// Package transcriber defines the speech-to-text collaborator interface and a
// whisper-CLI-backed implementation.
package transcriber

import "context"

// Transcriber converts normalized audio into text.
type Transcriber interface {
	// Ready reports whether the transcription backend can accept work.
	Ready() bool
	// Transcribe returns the transcript for the audio file at path. An empty
	// transcript means no speech was detected.
	Transcribe(ctx context.Context, path string) (string, error)
}
