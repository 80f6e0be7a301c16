package domain

import "fmt"

// Constraints describe what the local capture device should produce.
type Constraints struct {
	Width     int  `mapstructure:"width"`
	Height    int  `mapstructure:"height"`
	FrameRate int  `mapstructure:"frame_rate"`
	Video     bool `mapstructure:"video"`
	Audio     bool `mapstructure:"audio"`
}

func DefaultConstraints() Constraints {
	return Constraints{Width: 1280, Height: 720, FrameRate: 30, Video: true, Audio: true}
}

// ViewerCountLabel renders the publisher's viewer counter.
func ViewerCountLabel(n int) string {
	if n == 1 {
		return "1 viewer"
	}
	return fmt.Sprintf("%d viewers", n)
}
