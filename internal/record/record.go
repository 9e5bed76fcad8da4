// Package record defines the download record model: a typed row
// normalized from raw, JSON-shaped server data. Normalization is total:
// malformed fields fall back to documented sentinels instead of errors,
// so a bad record still renders.
package record

import (
	"fmt"
	"strings"
)

// Sentinels used by Normalize when a raw field is missing or malformed.
const (
	// InvalidID marks a record whose id was missing or non-numeric.
	// Callers must exclude it from display id formatting.
	InvalidID int64 = -1
	// UnsetTime means a date field was absent, negative, or not a number.
	UnsetTime int64 = 0
)

// Status is the download lifecycle state as reported by the server.
type Status int

const (
	StatusUnknown    Status = -1
	StatusPending    Status = 1
	StatusInProgress Status = 2
	StatusDone       Status = 3
	StatusFailed     Status = 4
	StatusMixed      Status = 5
)

// MediaType classifies the downloaded content.
type MediaType int

const (
	MediaUnknown MediaType = -1
	MediaGallery MediaType = 1
	MediaImage   MediaType = 2
	MediaVideo   MediaType = 3
	MediaAudio   MediaType = 4
	MediaText    MediaType = 5
)

// Label returns the human-facing name for the status.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusInProgress:
		return "In Progress"
	case StatusDone:
		return "Done"
	case StatusFailed:
		return "Failed"
	case StatusMixed:
		return "Mixed"
	default:
		return "Unknown"
	}
}

// Label returns the human-facing name for the media type.
func (m MediaType) Label() string {
	switch m {
	case MediaGallery:
		return "Gallery"
	case MediaImage:
		return "Image"
	case MediaVideo:
		return "Video"
	case MediaAudio:
		return "Audio"
	case MediaText:
		return "Text"
	default:
		return "Unknown"
	}
}

// Raw is a download record as decoded from the wire, before validation.
// The server speaks camelCase JSON; anything can be missing or mistyped.
type Raw = map[string]any

// Display holds the precomputed human-facing strings for a record.
// Empty canonical fields render as placeholders, never as blanks.
type Display struct {
	ID         string
	Title      string
	URL        string
	StartTime  string
	EndTime    string
	UpdateTime string
}

// Download is one row of the table. Canonical fields come from the
// server; derived fields (Display, SortTitle, SearchIndex) are recomputed
// in full whenever a canonical field changes. Selected and Visible are
// transient view state, not part of the record's identity.
type Download struct {
	ID            int64
	Title         string
	URL           string
	MediaType     MediaType
	Status        Status
	StatusMessage string
	StartTime     int64
	EndTime       int64
	UpdateTime    int64

	Display     Display
	SortTitle   string
	SearchIndex string

	Selected bool
	Visible  bool
}

// Normalize builds a Download from raw wire data. It never fails:
// invalid fields become sentinels (id -1, text "", time 0, enum Unknown)
// and derived fields are computed from the normalized values.
func Normalize(raw Raw) *Download {
	d := &Download{
		ID:            normalizeID(raw["id"]),
		Title:         normalizeText(raw["title"]),
		URL:           normalizeText(raw["url"]),
		MediaType:     MediaType(normalizeEnum(raw["mediaType"], validMediaTypes)),
		Status:        Status(normalizeEnum(raw["status"], validStatuses)),
		StatusMessage: normalizeText(raw["statusMessage"]),
		StartTime:     normalizeTime(raw["startTime"]),
		EndTime:       normalizeTime(raw["endTime"]),
		UpdateTime:    normalizeTime(raw["updateTime"]),
		Visible:       true,
	}
	d.recompute()
	return d
}

// RawID extracts the id field without building a whole record.
// The second return is false when the id is missing or non-numeric.
func RawID(raw Raw) (int64, bool) {
	v, ok := asInt64(raw["id"])
	return v, ok
}

// Patch is a partial update to a record. Only the fields in the mutable
// allow-list (title, media type, status) can change after creation; nil
// pointers mean "leave alone".
type Patch struct {
	ID        int64      `json:"id"`
	Title     *string    `json:"title,omitempty"`
	MediaType *MediaType `json:"mediaType,omitempty"`
	Status    *Status    `json:"status,omitempty"`
}

// PatchFromRaw extracts the allow-listed fields from raw wire data.
// Fields outside the allow-list are dropped here, so an UPDATE event can
// never touch url, times, or the id.
func PatchFromRaw(raw Raw) Patch {
	var p Patch
	if id, ok := asInt64(raw["id"]); ok {
		p.ID = id
	} else {
		p.ID = InvalidID
	}
	if _, present := raw["title"]; present {
		t := normalizeText(raw["title"])
		p.Title = &t
	}
	if _, present := raw["mediaType"]; present {
		m := MediaType(normalizeEnum(raw["mediaType"], validMediaTypes))
		p.MediaType = &m
	}
	if _, present := raw["status"]; present {
		s := Status(normalizeEnum(raw["status"], validStatuses))
		p.Status = &s
	}
	return p
}

// Apply merges a patch into the record. It returns true when at least one
// allow-listed field actually changed; a patch carrying only unchanged or
// absent values is a no-op and returns false. Derived fields are fully
// recomputed after any change rather than patched piecemeal.
func (d *Download) Apply(p Patch) bool {
	changed := false
	if p.Title != nil && *p.Title != d.Title {
		d.Title = *p.Title
		changed = true
	}
	if p.MediaType != nil && *p.MediaType != d.MediaType {
		d.MediaType = *p.MediaType
		changed = true
	}
	if p.Status != nil && *p.Status != d.Status {
		d.Status = *p.Status
		changed = true
	}
	if changed {
		d.recompute()
	}
	return changed
}

func (d *Download) recompute() {
	d.Display = Display{
		ID:         formatID(d.ID),
		Title:      fallback(d.Title, "Untitled"),
		URL:        fallback(d.URL, "Unknown"),
		StartTime:  formatTime(d.StartTime),
		EndTime:    formatTime(d.EndTime),
		UpdateTime: formatTime(d.UpdateTime),
	}
	d.SortTitle = strings.ToLower(d.Title)
	d.SearchIndex = strings.ToLower(
		d.Display.Title + " " + d.Display.URL + " " + d.Display.ID)
}

func formatID(id int64) string {
	if id < 0 {
		return "N/A"
	}
	return fmt.Sprintf("#%d", id)
}

func fallback(s, placeholder string) string {
	if s == "" {
		return placeholder
	}
	return s
}
