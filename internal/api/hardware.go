package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/fancontrol-core/internal/hardware"
)

// HardwareEntry is an entry's identity plus its override state.
type HardwareEntry struct {
	hardware.EntryInfo
	Overridden bool `json:"overridden"`
}

// HardwareList is the response of GET /hardware.
type HardwareList struct {
	Entries []HardwareEntry `json:"entries"`
	Total   int             `json:"total"`
	ByKind  map[string]int  `json:"by_kind"`
}

func (s *Server) hardwareEntry(info hardware.EntryInfo) HardwareEntry {
	e := HardwareEntry{EntryInfo: info}
	if info.Kind == hardware.KindControl {
		e.Overridden = s.hardware.IsOverridden(info.Index)
	}
	return e
}

// handleListHardware returns every registry entry in index order.
//
// Query parameters:
//   - kind: Control, Fan or Temperature (case-sensitive)
func (s *Server) handleListHardware(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")

	snapshot := s.hardware.Snapshot()
	list := HardwareList{
		Entries: make([]HardwareEntry, 0, len(snapshot)),
		ByKind:  make(map[string]int),
	}
	for _, info := range snapshot {
		list.ByKind[string(info.Kind)]++
		if kind != "" && string(info.Kind) != kind {
			continue
		}
		list.Entries = append(list.Entries, s.hardwareEntry(info))
	}
	list.Total = len(list.Entries)

	writeJSON(w, http.StatusOK, list)
}

// handleGetHardware returns a single entry by protocol index.
func (s *Server) handleGetHardware(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeBadRequest(w, "index must be a non-negative integer")
		return
	}

	snapshot := s.hardware.Snapshot()
	if index >= len(snapshot) {
		writeNotFound(w, "no hardware entry at index "+strconv.Itoa(index))
		return
	}

	writeJSON(w, http.StatusOK, s.hardwareEntry(snapshot[index]))
}
