// Package statusz serves render health and progress on the debug endpoint.
package statusz

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

type Handler struct {
	lock     sync.Mutex
	done     int
	total    int
	started  time.Time
	finished bool

	now func() time.Time
}

func New() *Handler {
	h := &Handler{now: time.Now}
	h.started = h.now()
	return h
}

// SetProgress matches scene.ProgressFunction.
func (h *Handler) SetProgress(done, total int) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.done = done
	h.total = total
}

func (h *Handler) Finish() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.finished = true
}

func (h *Handler) Progress() (done, total int) {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.done, h.total
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.lock.Lock()
	done, total, finished := h.done, h.total, h.finished
	elapsed := h.now().Sub(h.started)
	h.lock.Unlock()

	state := "rendering"
	if finished {
		state = "finished"
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "200 OK\nstate=%s rows=%d/%d elapsed=%v\n", state, done, total, elapsed.Truncate(time.Second))
}
