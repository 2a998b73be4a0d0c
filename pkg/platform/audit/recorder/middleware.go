package recorder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	audit "github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit"
)

// maxErrorBodyBytes bounds how much of an error response is kept to derive
// the failure reason.
const maxErrorBodyBytes = 4 << 10

// Middleware audits mutating requests. Safe verbs pass straight through.
// The handler sees the original body stream and the client receives the
// handler's response bytes unchanged; a status of 400 or above is recorded
// as FAILURE.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !audit.IsMutating(req.Method) {
			next.ServeHTTP(w, req)
			return
		}

		ctx := req.Context()
		body := r.bufferBody(req)
		auditReq := RequestFromContext(ctx, req.Method, req.URL.Path, body)
		rw := &responseCapture{ResponseWriter: w}

		completed := false
		defer func() {
			if completed {
				return
			}
			p := recover()
			r.capture(ctx, auditReq, audit.OutcomeFailure, abortReason(p))
			if p != nil {
				panic(p)
			}
		}()

		next.ServeHTTP(rw, req)
		completed = true

		if status := rw.statusCode(); status >= http.StatusBadRequest {
			r.capture(ctx, auditReq, audit.OutcomeFailure, failureReason(status, rw.errBody.Bytes()))
			return
		}
		r.capture(ctx, auditReq, audit.OutcomeSuccess, "")
	})
}

// bufferBody reads up to maxBodyBytes of the request body for the snapshot
// and replaces req.Body with a reader that replays those bytes followed by
// the unread remainder. A body over the limit yields a nil snapshot slice.
func (r *Recorder) bufferBody(req *http.Request) []byte {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}
	buf, err := io.ReadAll(io.LimitReader(req.Body, r.maxBodyBytes+1))
	req.Body = &replayBody{
		Reader: io.MultiReader(bytes.NewReader(buf), errReader{err}, req.Body),
		closer: req.Body,
	}
	if err != nil || int64(len(buf)) > r.maxBodyBytes {
		return nil
	}
	return buf
}

type replayBody struct {
	io.Reader
	closer io.Closer
}

func (b *replayBody) Close() error {
	return b.closer.Close()
}

// errReader surfaces a read error hit while buffering at the point the
// handler reaches it.
type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	return 0, io.EOF
}

// responseCapture forwards everything to the client while noting the status
// and keeping the head of an error body.
type responseCapture struct {
	http.ResponseWriter
	status  int
	errBody bytes.Buffer
}

func (rc *responseCapture) WriteHeader(code int) {
	if rc.status == 0 {
		rc.status = code
	}
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(p []byte) (int, error) {
	if rc.status == 0 {
		rc.status = http.StatusOK
	}
	if rc.status >= http.StatusBadRequest {
		if room := maxErrorBodyBytes - rc.errBody.Len(); room > 0 {
			rc.errBody.Write(p[:min(room, len(p))])
		}
	}
	return rc.ResponseWriter.Write(p)
}

func (rc *responseCapture) Flush() {
	if f, ok := rc.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rc *responseCapture) Unwrap() http.ResponseWriter {
	return rc.ResponseWriter
}

func (rc *responseCapture) statusCode() int {
	if rc.status == 0 {
		return http.StatusOK
	}
	return rc.status
}

// failureReason prefers the error text in a JSON error envelope and falls
// back to the status text.
func failureReason(status int, body []byte) string {
	var envelope map[string]any
	if json.Unmarshal(body, &envelope) == nil {
		for _, key := range []string{"error_description", "message", "error"} {
			if s, ok := envelope[key].(string); ok && s != "" {
				return s
			}
		}
	}
	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("%d %s", status, text)
	}
	return fmt.Sprintf("HTTP %d", status)
}
