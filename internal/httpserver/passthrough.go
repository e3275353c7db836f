package httpserver

import (
	"errors"
	"net/http"
	"time"
)

// handlePassthrough relays any request we have no transform for
// byte-for-byte to the upstream, streaming the response back as it
// arrives.
func (s *Server) handlePassthrough(w http.ResponseWriter, r *http.Request) {
	reqStart := time.Now()
	if s.upstream == nil {
		s.respondError(w, http.StatusServiceUnavailable, errors.New("upstream client unavailable"))
		return
	}

	resp, err := s.upstream.Do(r.Context(), r.Method, r.URL.Path, r.URL.RawQuery, proxyHeaders(r.Header), r.Body)
	if err != nil {
		s.respondError(w, http.StatusBadGateway, err)
		return
	}
	defer resp.Body.Close()

	copyResponseHeaders(w, resp)
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 8<<10)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr != nil {
			break
		}
	}
	s.debugf("passthrough %s %s status=%d total_ms=%d", r.Method, r.URL.Path, resp.StatusCode, time.Since(reqStart).Milliseconds())
}
