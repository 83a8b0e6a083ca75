package codec

import "testing"

func TestOutputDimensions(t *testing.T) {
	cases := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"passthrough at exactly 720", 720, 480, 720, 480},
		{"passthrough under 720", 640, 480, 640, 480},
		{"downscale 1280x720 per spec scenario 1", 1280, 720, 720, 405},
		{"downscale 1920x1080 per spec scenario 2", 1920, 1080, 720, 405},
		{"portrait downscale", 1080, 1920, 405, 720},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			gotW, gotH := OutputDimensions(c.w, c.h)
			if gotW != c.wantW || gotH != c.wantH {
				t.Errorf("OutputDimensions(%d, %d) = (%d, %d), want (%d, %d)",
					c.w, c.h, gotW, gotH, c.wantW, c.wantH)
			}
		})
	}
}
