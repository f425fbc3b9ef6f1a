// Package draft persists an in-progress report across sessions. Photo
// binaries are never persisted: a restored draft always comes back with all
// three slots empty.
package draft

import (
	"encoding/json"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/sabahroadcare/roadcare/localstore"
	"github.com/sabahroadcare/roadcare/models"
)

// Key is the single local-store slot a draft lives in. Saves and the
// post-submission clear race last-writer-wins on this one key.
const Key = "roadcareDraft"

// StaleAfter is the age past which a restored draft no longer triggers the
// "draft restored" notice. Staleness gates only the notice, not restoration.
const StaleAfter = 24 * time.Hour

// storedDraft is the serialized shape. Coordinates are pointers so a missing
// location is representable, matching what the browser build wrote.
type storedDraft struct {
	Description string         `json:"description"`
	District    string         `json:"district"`
	Location    storedLocation `json:"location"`
	SavedAt     time.Time      `json:"savedAt"`
	ID          int64          `json:"id"`
}

type storedLocation struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   string   `json:"address"`
	RoadName  string   `json:"roadName,omitempty"`
}

// Store saves, restores and clears the draft slot.
type Store struct {
	kv  localstore.Store
	now func() time.Time
}

func NewStore(kv localstore.Store) *Store {
	return &Store{kv: kv, now: time.Now}
}

// Save serializes the draft minus photo bindings and stamps savedAt.
func (s *Store) Save(d *models.ReportDraft) error {
	stored := storedDraft{
		Description: d.Description,
		District:    d.District,
		SavedAt:     s.now(),
		ID:          d.ID,
	}
	if stored.ID == 0 {
		stored.ID = s.now().UnixMilli()
	}
	if d.Location != nil {
		lat, lng := d.Location.Latitude, d.Location.Longitude
		stored.Location = storedLocation{
			Latitude:  &lat,
			Longitude: &lng,
			Address:   d.Location.Address,
			RoadName:  d.Location.RoadName,
		}
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return errors.Wrap(err, "encoding draft")
	}
	if err := s.kv.Set(Key, string(data)); err != nil {
		return errors.Wrap(err, "saving draft")
	}
	d.ID = stored.ID
	d.SavedAt = stored.SavedAt
	return nil
}

// Load restores the stored draft. It returns (nil, false, nil) when nothing
// is stored. Malformed data never surfaces as an error: the slot self-heals
// via Clear and Load behaves as if nothing were stored. fresh reports whether
// the draft is young enough for the "draft restored" notice; stale drafts are
// still returned and applied.
func (s *Store) Load() (d *models.ReportDraft, fresh bool, err error) {
	raw, ok, err := s.kv.Get(Key)
	if err != nil {
		return nil, false, errors.Wrap(err, "reading draft slot")
	}
	if !ok {
		return nil, false, nil
	}

	var stored storedDraft
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		log.Printf("discarding corrupt draft: %v", err)
		if clearErr := s.Clear(); clearErr != nil {
			log.Printf("clearing corrupt draft: %v", clearErr)
		}
		return nil, false, nil
	}

	d = &models.ReportDraft{
		ID:          stored.ID,
		Description: stored.Description,
		District:    stored.District,
		SavedAt:     stored.SavedAt,
	}
	// Location is all-or-nothing: one coordinate without the other is as good
	// as no location.
	if stored.Location.Latitude != nil && stored.Location.Longitude != nil {
		d.Location = &models.Location{
			Latitude:  *stored.Location.Latitude,
			Longitude: *stored.Location.Longitude,
			Address:   stored.Location.Address,
			RoadName:  stored.Location.RoadName,
		}
	}

	fresh = s.now().Sub(stored.SavedAt) < StaleAfter
	return d, fresh, nil
}

// Clear empties the draft slot. It runs after successful submission and after
// a failed parse.
func (s *Store) Clear() error {
	return errors.Wrap(s.kv.Remove(Key), "clearing draft")
}
