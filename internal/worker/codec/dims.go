package codec

// OutputDimensions implements spec.md §4.1's scale-to-720 rule: the
// longer side is capped at 720px, the other side scaled proportionally
// and rounded; streams already at or under 720 on their longer side pass
// through unscaled.
func OutputDimensions(width, height int) (outWidth, outHeight int) {
	longer := width
	if height > longer {
		longer = height
	}
	if longer <= 720 {
		return width, height
	}

	scale := 720.0 / float64(longer)
	return roundScale(width, scale), roundScale(height, scale)
}

func roundScale(dim int, scale float64) int {
	return int(float64(dim)*scale + 0.5)
}
