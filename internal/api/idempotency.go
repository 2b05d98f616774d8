package api

import (
	"bytes"
	"net/http"
	"sync"
	"time"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = time.Hour
	maxCachedReplies  = 1000
)

type (
	// cachedReply is a recorded response replayed for a repeated
	// Idempotency-Key.
	cachedReply struct {
		status      int
		contentType string
		body        []byte
		storedAt    time.Time
	}

	// idempotencyCache replays responses for POSTs that repeat an
	// Idempotency-Key within the TTL. Keys are scoped per path so the same
	// key on different endpoints stays independent.
	idempotencyCache struct {
		mu      sync.Mutex
		replies map[string]cachedReply
	}

	// replyRecorder captures the handler's response for later replay.
	replyRecorder struct {
		http.ResponseWriter

		status int
		body   bytes.Buffer
	}
)

func newIdempotencyCache() *idempotencyCache {
	return &idempotencyCache{replies: make(map[string]cachedReply)}
}

func (c *idempotencyCache) get(key string) (cachedReply, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply, ok := c.replies[key]
	if !ok {
		return cachedReply{}, false
	}

	if time.Since(reply.storedAt) > idempotencyTTL {
		delete(c.replies, key)

		return cachedReply{}, false
	}

	return reply, true
}

func (c *idempotencyCache) put(key string, reply cachedReply) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.replies) >= maxCachedReplies {
		c.evictExpiredLocked()
	}

	if len(c.replies) >= maxCachedReplies {
		// Still full after expiry eviction; drop an arbitrary entry rather
		// than grow without bound.
		for stale := range c.replies {
			delete(c.replies, stale)

			break
		}
	}

	reply.storedAt = time.Now()
	c.replies[key] = reply
}

func (c *idempotencyCache) evictExpiredLocked() {
	cutoff := time.Now().Add(-idempotencyTTL)

	for key, reply := range c.replies {
		if reply.storedAt.Before(cutoff) {
			delete(c.replies, key)
		}
	}
}

func (r *replyRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *replyRecorder) Write(p []byte) (int, error) {
	r.body.Write(p)

	return r.ResponseWriter.Write(p)
}

// withIdempotency wraps a POST handler: a repeated Idempotency-Key within
// the TTL returns the recorded response instead of re-executing the command.
func (s *Server) withIdempotency(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyHeader)
		if key == "" {
			next(w, r)

			return
		}

		cacheKey := r.URL.Path + "\x00" + key

		if reply, ok := s.idempotency.get(cacheKey); ok {
			w.Header().Set("Content-Type", reply.contentType)
			w.Header().Set("Idempotency-Replayed", "true")
			w.WriteHeader(reply.status)
			_, _ = w.Write(reply.body)

			return
		}

		recorder := &replyRecorder{ResponseWriter: w, status: http.StatusOK}

		next(recorder, r)

		// Only successful command outcomes are replayable; errors should be
		// retried fresh.
		if recorder.status < http.StatusBadRequest {
			s.idempotency.put(cacheKey, cachedReply{
				status:      recorder.status,
				contentType: recorder.Header().Get("Content-Type"),
				body:        append([]byte(nil), recorder.body.Bytes()...),
			})
		}
	}
}
