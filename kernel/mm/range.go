package mm

// FrameRange iterates over an inclusive range of consecutive frames. A range
// can be consumed only once; iterating again requires a new range.
type FrameRange struct {
	next, last Frame
	done       bool
}

// FrameRangeInclusive returns a range over the frames in [start, end]. The
// range is empty if end < start.
func FrameRangeInclusive(start, end Frame) FrameRange {
	return FrameRange{next: start, last: end, done: end < start}
}

// Next returns the next frame in the range. The second return value is false
// once the range has been exhausted.
func (r *FrameRange) Next() (Frame, bool) {
	if r.done {
		return InvalidFrame, false
	}

	f := r.next
	if f == r.last {
		r.done = true
	} else {
		r.next++
	}
	return f, true
}

// PageRange iterates over an inclusive range of consecutive pages. A range
// can be consumed only once; iterating again requires a new range.
type PageRange struct {
	next, last Page
	done       bool
}

// PageRangeInclusive returns a range over the pages in [start, end]. The range
// is empty if end < start.
func PageRangeInclusive(start, end Page) PageRange {
	return PageRange{next: start, last: end, done: end < start}
}

// Next returns the next page in the range. The second return value is false
// once the range has been exhausted.
func (r *PageRange) Next() (Page, bool) {
	if r.done {
		return 0, false
	}

	p := r.next
	if p == r.last {
		r.done = true
	} else {
		r.next++
	}
	return p, true
}
