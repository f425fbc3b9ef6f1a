package models

import (
	"time"
)

// PhotoSlotCount is fixed: every report carries a top view, a far view and a
// close-up of the damage.
const PhotoSlotCount = 3

// MaxDescriptionLen caps the free-text description on every mutation, not
// just at submit time.
const MaxDescriptionLen = 200

// Location is either fully absent from a draft or carries both coordinates.
// Address and RoadName are filled by the location resolver and never left
// empty once coordinates exist.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
	RoadName  string  `json:"road_name"`
}

// PhotoAttachment is a bound, not-yet-uploaded image: the raw payload plus
// what we sniffed about it. Preview is a JPEG data URL for display and may be
// empty when preview generation failed; the payload is still usable for
// submission in that case.
type PhotoAttachment struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Content  []byte `json:"-"`
	Preview  string `json:"-"`
}

// ReportDraft is the central form state. Photos always has exactly
// PhotoSlotCount entries; a nil entry is an empty slot.
type ReportDraft struct {
	ID          int64                            `json:"id"`
	Description string                           `json:"description"`
	District    string                           `json:"district"`
	Location    *Location                        `json:"location"`
	Photos      [PhotoSlotCount]*PhotoAttachment `json:"-"`
	SavedAt     time.Time                        `json:"savedAt"`
}

// BoundPhotoCount reports how many of the three slots hold an image.
func (d *ReportDraft) BoundPhotoCount() int {
	n := 0
	for _, p := range d.Photos {
		if p != nil {
			n++
		}
	}
	return n
}

// Reset returns the draft to its freshly-mounted state.
func (d *ReportDraft) Reset() {
	*d = ReportDraft{}
}

// SubmissionReceipt is whatever the report API hands back on success. Only
// the case id is required to be present.
type SubmissionReceipt struct {
	CaseID         string `json:"case_id"`
	Status         string `json:"status"`
	Severity       string `json:"severity,omitempty"`
	SimilarReports int    `json:"similar_reports,omitempty"`
}
