package state

const (
	AudioPlaceholder = "Listening..."
	VideoPlaceholder = "Analyzing..."
)

// Display is the two-slot result state read by the presentation layer.
// Audio is written only by the audio loop, Video only by the video loop.
type Display struct {
	Audio *Cell
	Video *Cell
}

func NewDisplay() *Display {
	return &Display{
		Audio: NewCell(AudioPlaceholder),
		Video: NewCell(VideoPlaceholder),
	}
}
