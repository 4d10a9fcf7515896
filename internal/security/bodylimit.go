package security

import (
	"bytes"
	"errors"
	"io"
	"net/http"
)

// BodyLimit caps the request payload. Redemption and auth payloads are tiny,
// so anything large is either a mistake or abuse.
type BodyLimit struct {
	Max int64
}

// Middleware answers 413 when the body exceeds Max. The declared
// Content-Length is checked first so oversized uploads are refused without
// reading them; chunked bodies are read up to the cap.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max && r.ContentLength != -1 {
			http.Error(w, "request entity too large", http.StatusRequestEntityTooLarge)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, b.Max+1))
		if err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if int64(len(body)) > b.Max {
			http.Error(w, "request entity too large", http.StatusRequestEntityTooLarge)
			return
		}
		_ = r.Body.Close()

		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		next.ServeHTTP(w, r)
	})
}
