package recognize

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract implements Recognizer with a local Tesseract install via
// gosseract. A Tesseract instance owns one native client and is not safe for
// concurrent use; the pool creates one per worker through the Factory.
type Tesseract struct {
	client *gosseract.Client
}

// DefaultLanguages are the trained data sets used when none are configured.
// Transaction logs in scope mix simplified Chinese and English.
var DefaultLanguages = []string{"chi_sim", "eng"}

// NewTesseract creates a Tesseract recognizer for the given languages.
func NewTesseract(languages ...string) (*Tesseract, error) {
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(languages...); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting tesseract languages: %w", err)
	}
	return &Tesseract{client: client}, nil
}

// TesseractFactory returns a Factory producing one Tesseract client per
// worker.
func TesseractFactory(languages ...string) Factory {
	return func() (Recognizer, error) {
		return NewTesseract(languages...)
	}
}

// Recognize runs OCR over the image. Tesseract's C API yields no usable
// incremental progress, so progress is reported only on completion.
func (t *Tesseract) Recognize(ctx context.Context, image []byte, progress ProgressFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := t.client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("setting image: %w", err)
	}
	text, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognizing text: %w", err)
	}
	if progress != nil {
		progress(1)
	}
	return text, nil
}

// Close releases the native Tesseract client.
func (t *Tesseract) Close() error {
	return t.client.Close()
}
