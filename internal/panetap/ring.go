package panetap

// chunk is one captured write, tagged with the cursor value at its start.
type chunk struct {
	cursor uint64
	data   []byte
}

// replayRing holds recent pane output keyed by a monotonic cursor,
// evicting from the front once the buffered line count exceeds a cap.
// Mirrors the teacher's panestate ring buffer; "lines" here are counted
// by newline bytes rather than terminal rows, since the tap does not
// parse escape sequences (wrap is the viewer's job, per §4.2).
type replayRing struct {
	chunks     []chunk
	nextCursor uint64
	lineCount  int
	maxLines   int
}

// defaultMaxBufferedLines mirrors "at most ~3,000 lines" (§3).
const defaultMaxBufferedLines = 3000

func newReplayRing(maxLines int) *replayRing {
	if maxLines <= 0 {
		maxLines = defaultMaxBufferedLines
	}
	return &replayRing{maxLines: maxLines}
}

// Append records data at the ring's current cursor and advances it,
// returning the cursor the new chunk starts at.
func (rr *replayRing) Append(data []byte) uint64 {
	if len(data) == 0 {
		return rr.nextCursor
	}
	start := rr.nextCursor
	c := chunk{cursor: start, data: append([]byte(nil), data...)}
	rr.chunks = append(rr.chunks, c)
	rr.nextCursor += uint64(len(data))
	rr.lineCount += countLines(data)
	rr.evict()
	return start
}

func countLines(data []byte) int {
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return n
}

// evict drops chunks from the front while the buffered line count exceeds
// maxLines. Eviction never moves nextCursor backwards (§3 invariant 3);
// it only forgets content a viewer can no longer replay, which is why a
// viewer whose next-cursor falls before the oldest remaining chunk must
// be resynchronized with a reset frame (Manager.Since reports ok=false for
// such a cursor).
func (rr *replayRing) evict() {
	for rr.lineCount > rr.maxLines && len(rr.chunks) > 1 {
		removed := rr.chunks[0]
		rr.chunks = rr.chunks[1:]
		rr.lineCount -= countLines(removed.data)
	}
}

// OldestCursor returns the cursor of the oldest chunk still buffered, or
// nextCursor if the ring is empty.
func (rr *replayRing) OldestCursor() uint64 {
	if len(rr.chunks) == 0 {
		return rr.nextCursor
	}
	return rr.chunks[0].cursor
}

// Since returns the concatenation of every chunk whose data overlaps
// [fromCursor, nextCursor), and whether fromCursor still falls within
// the retained window (false means the caller must resynchronize).
func (rr *replayRing) Since(fromCursor uint64) ([]byte, bool) {
	if fromCursor < rr.OldestCursor() {
		return nil, false
	}
	if fromCursor > rr.nextCursor {
		return nil, false
	}
	var out []byte
	for _, c := range rr.chunks {
		end := c.cursor + uint64(len(c.data))
		if end <= fromCursor {
			continue
		}
		if c.cursor >= fromCursor {
			out = append(out, c.data...)
			continue
		}
		out = append(out, c.data[fromCursor-c.cursor:]...)
	}
	return out, true
}

// Snapshot returns everything currently buffered plus the cursor it was
// anchored at (used for the initial `attached` frame, §4.3).
func (rr *replayRing) Snapshot() ([]byte, uint64) {
	data, _ := rr.Since(rr.OldestCursor())
	return data, rr.OldestCursor()
}

// Reset clears the ring and restarts the cursor sequence, used when the
// underlying capture reports a tmux clear-history / alternate-screen
// toggle (§4.2 edge policy).
func (rr *replayRing) Reset() {
	rr.chunks = nil
	rr.lineCount = 0
	// nextCursor intentionally keeps advancing rather than resetting to 0:
	// cursors must stay monotonic even across a reset (§3 invariant 3); the
	// reset frame itself is what tells viewers to discard prior content.
}
