// Package wire encodes outbound stream messages into the compact binary
// frame format served over /ws/stream/{id}: a one-byte type tag followed
// by a type-specific payload, so a browser client can demux frames
// without parsing JSON on the hot path. Framing style is adapted from
// the teacher's protocol.EncodeKeyEvent/EncodeTextEvent pair.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/tri2820/unblink-sub001/internal/worker/core"
	"github.com/tri2820/unblink-sub001/internal/worker/pubsub"
)

// Frame type tags, byte 0 of every wire message.
const (
	TypeCodecIdentity byte = 0x01
	TypeFrame         byte = 0x02
	TypeClipSaved     byte = 0x03
	TypeEnded         byte = 0x04
)

// Encode renders one pubsub.Message as a wire frame. The zero-value
// return (nil, non-nil error) happens only if msg carries no payload,
// which indicates a bug in the publisher, not a recoverable condition.
func Encode(msg pubsub.Message) ([]byte, error) {
	switch {
	case msg.CodecIdentity != nil:
		return encodeCodecIdentity(msg.CodecIdentity), nil
	case msg.Frame != nil:
		return encodeFrame(msg.Frame), nil
	case msg.ClipSaved != nil:
		return encodeClipSaved(msg.ClipSaved), nil
	case msg.Ended != nil:
		return encodeEnded(msg.Ended), nil
	default:
		return nil, fmt.Errorf("wire: empty message")
	}
}

// encodeCodecIdentity: tag | width u32 | height u32 | has_audio u8 |
// mime_len u16 | mime | full_codec_len u16 | full_codec
func encodeCodecIdentity(id *core.CodecIdentity) []byte {
	mime := []byte(id.MimeType)
	full := []byte(id.FullCodec)

	buf := make([]byte, 0, 1+4+4+1+2+len(mime)+2+len(full))
	buf = append(buf, TypeCodecIdentity)
	buf = appendU32(buf, uint32(id.Width))
	buf = appendU32(buf, uint32(id.Height))
	if id.HasAudio {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendU16(buf, uint16(len(mime)))
	buf = append(buf, mime...)
	buf = appendU16(buf, uint16(len(full)))
	buf = append(buf, full...)
	return buf
}

// encodeFrame: tag | has_timestamp u8 | timestamp_ms i64 (0 if absent) |
// data_len u32 | data
func encodeFrame(f *core.Frame) []byte {
	buf := make([]byte, 0, 1+1+8+4+len(f.Data))
	buf = append(buf, TypeFrame)
	if f.TimestampMs != nil {
		buf = append(buf, 1)
		buf = appendI64(buf, *f.TimestampMs)
	} else {
		buf = append(buf, 0)
		buf = appendI64(buf, 0)
	}
	buf = appendU32(buf, uint32(len(f.Data)))
	buf = append(buf, f.Data...)
	return buf
}

// encodeClipSaved: tag | moment_id_len u16 | moment_id | path_len u16 | path
func encodeClipSaved(c *pubsub.ClipSavedMsg) []byte {
	id := []byte(c.MomentID)
	path := []byte(c.ClipPath)

	buf := make([]byte, 0, 1+2+len(id)+2+len(path))
	buf = append(buf, TypeClipSaved)
	buf = appendU16(buf, uint16(len(id)))
	buf = append(buf, id...)
	buf = appendU16(buf, uint16(len(path)))
	buf = append(buf, path...)
	return buf
}

// encodeEnded: tag | reason_len u16 | reason
func encodeEnded(e *pubsub.EndedMsg) []byte {
	reason := []byte(e.Reason)

	buf := make([]byte, 0, 1+2+len(reason))
	buf = append(buf, TypeEnded)
	buf = appendU16(buf, uint16(len(reason)))
	buf = append(buf, reason...)
	return buf
}

func appendU16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendI64(buf []byte, v int64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	return append(buf, tmp[:]...)
}
