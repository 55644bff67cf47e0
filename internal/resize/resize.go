// Package resize computes target dimensions from profile size limits.
package resize

// Plan returns the dimensions an image of width x height should be encoded at.
//
// The largest-side limit is applied first. The smallest side of that result is
// then checked against maxSmallest and shrunk again if it still exceeds it.
// Each pass scales both sides by the same factor and truncates. Nil limits are
// unconstrained and the image is never enlarged.
func Plan(width, height int, maxLargest, maxSmallest *int) (int, int) {
	if width <= 0 || height <= 0 {
		return width, height
	}

	w, h := width, height

	if maxLargest != nil && *maxLargest > 0 {
		if largest := max(w, h); largest > *maxLargest {
			w, h = scale(w, h, *maxLargest, largest)
		}
	}

	if maxSmallest != nil && *maxSmallest > 0 {
		if smallest := min(w, h); smallest > *maxSmallest {
			w, h = scale(w, h, *maxSmallest, smallest)
		}
	}

	return w, h
}


// scale multiplies both sides by num/den using integer arithmetic so the
// floor is exact.
func scale(w, h, num, den int) (int, int) {
	sw := int(int64(w) * int64(num) / int64(den))
	sh := int(int64(h) * int64(num) / int64(den))
	return max(sw, 1), max(sh, 1)
}
