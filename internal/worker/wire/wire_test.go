package wire

import (
	"encoding/binary"
	"testing"

	"github.com/tri2820/unblink-sub001/internal/worker/core"
	"github.com/tri2820/unblink-sub001/internal/worker/pubsub"
)

func TestEncodeCodecIdentity(t *testing.T) {
	id := &core.CodecIdentity{MimeType: "image/jpeg", FullCodec: "image/jpeg; codecs=mjpeg", Width: 720, Height: 405, HasAudio: true}
	buf, err := Encode(pubsub.Message{CodecIdentity: id})
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if buf[0] != TypeCodecIdentity {
		t.Fatalf("tag byte = %d, want %d", buf[0], TypeCodecIdentity)
	}
	width := binary.BigEndian.Uint32(buf[1:5])
	height := binary.BigEndian.Uint32(buf[5:9])
	if width != 720 || height != 405 {
		t.Errorf("got width=%d height=%d, want 720/405", width, height)
	}
	if buf[9] != 1 {
		t.Errorf("has_audio byte = %d, want 1", buf[9])
	}
}

func TestEncodeFrameRoundTripsLength(t *testing.T) {
	ts := int64(1234)
	data := []byte{0xFF, 0xD8, 0x01, 0x02}
	buf, err := Encode(pubsub.Message{Frame: &core.Frame{Data: data, TimestampMs: &ts}})
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if buf[0] != TypeFrame {
		t.Fatalf("tag byte = %d, want %d", buf[0], TypeFrame)
	}
	if buf[1] != 1 {
		t.Fatalf("has_timestamp byte = %d, want 1", buf[1])
	}
	gotTS := int64(binary.BigEndian.Uint64(buf[2:10]))
	if gotTS != ts {
		t.Errorf("timestamp = %d, want %d", gotTS, ts)
	}
	dataLen := binary.BigEndian.Uint32(buf[10:14])
	if int(dataLen) != len(data) {
		t.Errorf("data_len = %d, want %d", dataLen, len(data))
	}
	if string(buf[14:]) != string(data) {
		t.Errorf("payload mismatch")
	}
}

func TestEncodeEmptyMessageErrors(t *testing.T) {
	if _, err := Encode(pubsub.Message{}); err == nil {
		t.Errorf("expected an error encoding an empty message")
	}
}
