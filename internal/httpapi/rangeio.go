package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// parseRange handles the single-range "bytes=start-end" form only, per
// spec §4.5 "Range requests are supported opportunistically: if the
// cache holds the full segment, a range response is constructed from the
// buffer". Anything else is ignored and the caller serves the full body.
func parseRange(header string, size int) (start, end int, ok bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, false
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return 0, 0, false
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}

	if parts[0] == "" {
		// suffix range: last N bytes
		n, err := strconv.Atoi(parts[1])
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, true
	}

	s, err := strconv.Atoi(parts[0])
	if err != nil || s < 0 || s >= size {
		return 0, 0, false
	}

	e := size - 1
	if parts[1] != "" {
		e, err = strconv.Atoi(parts[1])
		if err != nil || e < s {
			return 0, 0, false
		}
		if e >= size {
			e = size - 1
		}
	}

	return s, e, true
}

func contentRangeHeader(start, end, size int) string {
	return fmt.Sprintf("bytes %d-%d/%d", start, end, size)
}

const streamChunkBytes = 32 * 1024

// streamWithFlush copies src to w in fixed-size chunks, flushing after
// each one so bytes reach the client incrementally rather than all at
// once. It does not change how src was filled: the segment handlers pass
// it a reader over bytes already held in full by the cache.
func streamWithFlush(w http.ResponseWriter, src io.Reader) {
	rc := http.NewResponseController(w)
	buf := make([]byte, streamChunkBytes)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			_ = rc.Flush()
		}
		if err != nil {
			return
		}
	}
}
