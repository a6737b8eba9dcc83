package markup

import (
	"context"
	"time"
	"unicode/utf8"
)

// Frame is one step of a typed-out reveal.
type Frame struct {
	// Index is the zero-based rune position of Delta.
	Index int `json:"index"`
	// Delta is the rune revealed by this frame.
	Delta string `json:"delta"`
	// Revealed is the prefix of the reply visible after this frame.
	Revealed string `json:"-"`
}

// Reveal emits text one rune at a time, waiting cadence between frames.
// It stops with ctx.Err() when ctx is cancelled and with emit's error when
// emit fails. text itself is never modified, so a caller that abandons the
// reveal still holds the complete reply. A non-positive cadence emits every
// frame without waiting.
func Reveal(ctx context.Context, text string, cadence time.Duration, emit func(Frame) error) error {
	var tick <-chan time.Time
	if cadence > 0 {
		ticker := time.NewTicker(cadence)
		defer ticker.Stop()
		tick = ticker.C
	}

	for index, offset := 0, 0; offset < len(text); index++ {
		if tick != nil && index > 0 {
			select {
			case <-ctx.Done():
			case <-tick:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		_, size := utf8.DecodeRuneInString(text[offset:])
		end := offset + size
		if err := emit(Frame{Index: index, Delta: text[offset:end], Revealed: text[:end]}); err != nil {
			return err
		}
		offset = end
	}
	return nil
}
