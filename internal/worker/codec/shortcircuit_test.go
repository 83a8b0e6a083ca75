package codec

import (
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/assert"
)

func TestShouldSkipTranscode(t *testing.T) {
	cases := []struct {
		name   string
		codec  astiav.CodecID
		pixFmt astiav.PixelFormat
		want   bool
	}{
		{"mjpeg with permitted yuv420p", astiav.CodecIDMjpeg, astiav.PixelFormatYuv420P, true},
		{"mjpeg with permitted yuvj420p", astiav.CodecIDMjpeg, astiav.PixelFormatYuvj420P, true},
		{"h264 never short-circuits", astiav.CodecIDH264, astiav.PixelFormatYuv420P, false},
		{"mjpeg with unlisted pixel format", astiav.CodecIDMjpeg, astiav.PixelFormat(9999), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ShouldSkipTranscode(c.codec, c.pixFmt))
		})
	}
}
