// Package recognize defines the text-recognition collaborator contract and
// its backends. The interface is transport-agnostic so recognition can be
// backed by a local Tesseract install, Gemini, or an Ollama vision model
// without leaking provider concerns into the pipeline.
package recognize

import "context"

// ProgressFunc receives incremental recognition progress for one image as
// fractions in [0, 1]. Backends may call it zero or more times; callers must
// tolerate both. A nil ProgressFunc means the caller does not want progress.
type ProgressFunc func(fraction float64)

// Recognizer extracts text from one encoded image. Implementations impose
// their own timeouts; the pipeline defines none.
type Recognizer interface {
	// Recognize returns the recognized text for the image, optionally
	// reporting incremental progress before the final result.
	Recognize(ctx context.Context, image []byte, progress ProgressFunc) (string, error)

	// Close releases the recognizer's resources. It must be called exactly
	// once per recognizer.
	Close() error
}

// Factory creates one Recognizer per pool worker. Each worker acquires its
// recognizer at pool creation and releases it after the final join.
type Factory func() (Recognizer, error)

// transcriptionPrompt is shared by the LLM-backed recognizers. Unlike a
// structured-extraction prompt, it asks for a raw transcription; the
// extractor downstream handles record shaping and is tolerant of layout
// noise.
const transcriptionPrompt = `You are reading a screenshot of an expense transaction log. The text is a mix of Chinese and English.

Transcribe ALL visible text exactly as it appears, preserving the line structure top to bottom. Timestamps, amounts (including minus signs and decimal points) and category words must be reproduced character for character.

Output only the transcribed text. Do not translate, summarize, reorder, or add any commentary or markdown.`
