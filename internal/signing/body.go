package signing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultMaxBodyBytes is the largest message the queue accepts.
const DefaultMaxBodyBytes = 256 << 10

var ErrBodyTooLarge = errors.New("request body exceeds limit")

// ReadAndRewind consumes the request body once, up to limit bytes, and puts
// a reader positioned at the start back on r.Body so later consumers see the
// full payload. On error only the bytes already read are put back.
func ReadAndRewind(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		r.Body = http.NoBody
		return []byte{}, nil
	}
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrBodyTooLarge
	}
	return data, nil
}
