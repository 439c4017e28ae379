// Package httpapi serves an inspection view of the running recording over
// HTTP: counters and the metadata of retained frames. Pixel data is not
// served.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/soocke/framering-go/domain/capture"
)

// SessionProvider yields the running session, or nil while stopped.
type SessionProvider interface {
	Session() *capture.Session
	Target() capture.Target
}

// Handler exposes recording endpoints using go-chi.
type Handler struct {
	src SessionProvider
	log *slog.Logger
}

// NewHandler returns a Handler reading from src.
func NewHandler(src SessionProvider, log *slog.Logger) *Handler {
	return &Handler{src: src, log: log}
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Session       string  `json:"session"`
	State         string  `json:"state"`
	Target        string  `json:"target"`
	Frames        int     `json:"frames"`
	Bytes         int64   `json:"bytes"`
	BudgetBytes   int64   `json:"budget_bytes"`
	DetachedBytes int64   `json:"detached_bytes"`
	OldestMs      float64 `json:"oldest_ms"`
	NewestMs      float64 `json:"newest_ms"`
	Arrived       uint64  `json:"frames_arrived"`
	Committed     uint64  `json:"frames_committed"`
	Evicted       uint64  `json:"frames_evicted"`
	Dropped       uint64  `json:"frames_dropped"`
	InFlight      int     `json:"in_flight"`
	OpenSnapshots int     `json:"open_snapshots"`
	AvgReadbackMs float64 `json:"avg_readback_ms"`
	Error         string  `json:"error,omitempty"`
}

// FrameInfo describes one retained frame.
type FrameInfo struct {
	Index       int     `json:"index"`
	Sequence    uint64  `json:"sequence"`
	TimestampMs float64 `json:"timestamp_ms"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Stride      int     `json:"stride"`
	Bytes       int     `json:"bytes"`
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// session returns the running session or answers 503.
func (h *Handler) session(w http.ResponseWriter) *capture.Session {
	s := h.src.Session()
	if s == nil {
		http.Error(w, "not recording", http.StatusServiceUnavailable)
	}
	return s
}

// GetStats handles GET /stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	s := h.session(w)
	if s == nil {
		return
	}
	st := s.Stats()
	resp := StatsResponse{
		Session:       s.ID(),
		State:         s.State().String(),
		Target:        h.src.Target().String(),
		Frames:        st.Ring.Frames,
		Bytes:         st.Ring.Bytes,
		BudgetBytes:   st.Ring.BudgetBytes,
		DetachedBytes: st.Ring.DetachedBytes,
		OldestMs:      ms(st.Ring.OldestTimestamp),
		NewestMs:      ms(st.Ring.NewestTimestamp),
		Arrived:       st.FramesArrived,
		Committed:     st.Ring.Committed,
		Evicted:       st.Ring.Evicted,
		Dropped:       st.Dropped(),
		InFlight:      st.InFlight,
		OpenSnapshots: st.OpenSnapshots,
		AvgReadbackMs: ms(st.AvgReadback),
	}
	if err := s.Err(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, h.log, resp)
}

// ListFrames handles GET /frames. Optional from and to query parameters are
// Go durations bounding the capture timestamps, e.g. ?from=1s&to=2500ms.
func (h *Handler) ListFrames(w http.ResponseWriter, r *http.Request) {
	s := h.session(w)
	if s == nil {
		return
	}
	var opts []capture.SnapshotOption
	for key, opt := range map[string]func(time.Duration) capture.SnapshotOption{
		"from": capture.WithStart,
		"to":   capture.WithEnd,
	} {
		v := r.URL.Query().Get(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			http.Error(w, "invalid "+key+": "+err.Error(), http.StatusBadRequest)
			return
		}
		opts = append(opts, opt(d))
	}

	infos := []FrameInfo{}
	err := s.WithSnapshot(func(snap *capture.Snapshot) error {
		for i := 0; i < snap.Len(); i++ {
			v, ok := snap.Frame(i)
			if !ok {
				break
			}
			infos = append(infos, frameInfo(i, v))
		}
		return nil
	}, opts...)
	if err != nil {
		h.sessionError(w, err)
		return
	}
	writeJSON(w, h.log, infos)
}

// GetFrame handles GET /frames/{index}: metadata of the index-th newest frame.
func (h *Handler) GetFrame(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		http.Error(w, "invalid index", http.StatusBadRequest)
		return
	}
	s := h.session(w)
	if s == nil {
		return
	}
	h.findFrame(w, s, func(snap *capture.Snapshot) (capture.FrameView, int, bool) {
		v, ok := snap.Frame(index)
		return v, index, ok
	})
}

// FindFrame handles GET /frame?age=500ms or GET /frame?at=12s: metadata of
// the frame nearest an age behind the newest, or of the latest frame captured
// at or before a timestamp.
func (h *Handler) FindFrame(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := "age"
	if q.Has("at") {
		key = "at"
	}
	raw := q.Get(key)
	if raw == "" {
		raw = "0s"
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		http.Error(w, "invalid "+key+": "+err.Error(), http.StatusBadRequest)
		return
	}
	s := h.session(w)
	if s == nil {
		return
	}
	if key == "at" {
		h.findFrame(w, s, func(snap *capture.Snapshot) (capture.FrameView, int, bool) {
			return snap.FrameAt(d)
		})
		return
	}
	h.findFrame(w, s, func(snap *capture.Snapshot) (capture.FrameView, int, bool) {
		i := snap.IndexByAge(d)
		if i < 0 {
			return capture.FrameView{}, -1, false
		}
		v, ok := snap.Frame(i)
		return v, i, ok
	})
}

// findFrame runs pick over a snapshot of the ring and answers with the
// metadata of the chosen frame. Pixels never leave the process.
func (h *Handler) findFrame(w http.ResponseWriter, s *capture.Session, pick func(*capture.Snapshot) (capture.FrameView, int, bool)) {
	var (
		info  FrameInfo
		found bool
	)
	err := s.WithSnapshot(func(snap *capture.Snapshot) error {
		v, i, ok := pick(snap)
		if ok {
			info, found = frameInfo(i, v), true
		}
		return nil
	})
	if err != nil {
		h.sessionError(w, err)
		return
	}
	if !found {
		http.Error(w, "no such frame", http.StatusNotFound)
		return
	}
	writeJSON(w, h.log, info)
}

func frameInfo(index int, v capture.FrameView) FrameInfo {
	return FrameInfo{
		Index:       index,
		Sequence:    v.Sequence,
		TimestampMs: ms(v.Timestamp),
		Width:       v.Width,
		Height:      v.Height,
		Stride:      v.Stride,
		Bytes:       len(v.Data),
	}
}

func (h *Handler) sessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, capture.ErrUseAfterClose) {
		http.Error(w, err.Error(), http.StatusGone)
		return
	}
	h.log.Error("session lookup failed", slog.String("error", err.Error()))
	w.WriteHeader(http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("response encode failed", slog.String("error", err.Error()))
	}
}
