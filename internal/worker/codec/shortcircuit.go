package codec

import "github.com/asticode/go-astiav"

// permittedPassthroughFormats is the exact pixel-format allowlist from
// spec.md §4.1's transcode short-circuit policy.
var permittedPassthroughFormats = map[astiav.PixelFormat]bool{
	astiav.PixelFormatYuv420P:   true,
	astiav.PixelFormatYuyv422:   true,
	astiav.PixelFormatRgb24:     true,
	astiav.PixelFormatBgr24:     true,
	astiav.PixelFormatYuv422P:   true,
	astiav.PixelFormatYuv444P:   true,
	astiav.PixelFormatYuv410P:   true,
	astiav.PixelFormatYuv411P:   true,
	astiav.PixelFormatGray8:     true,
	astiav.PixelFormatMonowhite: true,
	astiav.PixelFormatMonoblack: true,
	astiav.PixelFormatPal8:      true,
	astiav.PixelFormatYuvj420P:  true,
	astiav.PixelFormatYuvj422P:  true,
	astiav.PixelFormatYuvj444P:  true,
	astiav.PixelFormatUyvy422:   true,
	astiav.PixelFormatUyyvyy411: true,
	astiav.PixelFormatBgr8:      true,
	astiav.PixelFormatBgr4:      true,
	astiav.PixelFormatBgr4Byte:  true,
	astiav.PixelFormatRgb8:      true,
	astiav.PixelFormatRgb4:      true,
	astiav.PixelFormatRgb4Byte:  true,
}

// ShouldSkipTranscode reports whether an input packet can be republished
// unchanged: the stream's codec is already MJPEG and its pixel format is
// in the permitted set. The MJPEG encoder still runs regardless — its
// output always feeds the recorder (spec.md I1).
func ShouldSkipTranscode(codecID astiav.CodecID, pixFmt astiav.PixelFormat) bool {
	return codecID == astiav.CodecIDMjpeg && permittedPassthroughFormats[pixFmt]
}
