package media

// Upper bounds on decoded video, and the size of the decoder's frame pool.
const (
	MaxDimension   = (1 << 15) - 1
	MaxCanvas      = 1 << (14 * 2)
	MaxVideoFrames = 4
)

// ValidDimensions reports whether a width x height picture is within limits.
func ValidDimensions(width, height int) bool {
	return width > 0 && height > 0 &&
		width <= MaxDimension && height <= MaxDimension &&
		width*height <= MaxCanvas
}
