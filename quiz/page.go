package quiz

// PageWindow returns the [start, end) bounds of 1-based page over n items. A page past
// the end, a size below 1, or n == 0 gives start == end. page < 1 is read as 1. The
// bounds never overflow, whatever page and size are.
func PageWindow(page, size, n int) (start, end int) {
	if size < 1 || n <= 0 {
		return 0, 0
	}
	if page < 1 {
		page = 1
	}
	// (page-1)*size >= n exactly when page-1 > (n-1)/size.
	if page-1 > (n-1)/size {
		return n, n
	}
	start = (page - 1) * size
	if size >= n-start {
		return start, n
	}
	return start, start + size
}
