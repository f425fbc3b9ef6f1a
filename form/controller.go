// Package form owns the report form state: the three photo slots, the
// resolved location, district and description, plus validation and the
// submit lifecycle.
package form

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/sabahroadcare/roadcare/draft"
	"github.com/sabahroadcare/roadcare/location"
	"github.com/sabahroadcare/roadcare/models"
	"github.com/sabahroadcare/roadcare/photos"
)

// Phase is where the form is in its submit lifecycle. Editing is the resting
// state; a failed submission lands back in it with nothing lost.
type Phase int

const (
	Editing Phase = iota
	Validating
	Submitting
	Succeeded
)

// Validation error field keys and their user-facing messages.
const (
	FieldPhotos   = "photos"
	FieldLocation = "location"
	FieldDistrict = "district"

	msgPhotos   = "Please upload all 3 photos"
	msgLocation = "Please tag your location"
	msgDistrict = "Please select a district"
)

// SuccessRedirectDelay is how long the success acknowledgment stays on screen
// before navigating to the history view.
const SuccessRedirectDelay = 2 * time.Second

var (
	// ErrValidationFailed means the submit attempt was aborted before any
	// network call; read Errors() for the field messages.
	ErrValidationFailed = errors.New("please fix the highlighted fields")
	// ErrSubmitInFlight is returned to a second submit while the first is
	// still pending; only one pipeline invocation happens per user action.
	ErrSubmitInFlight = errors.New("submission already in progress")
)

// Submitter is the submission pipeline contract.
type Submitter interface {
	Submit(ctx context.Context, d *models.ReportDraft) (*models.SubmissionReceipt, error)
}

// Controller orchestrates the report form.
type Controller struct {
	store     *draft.Store
	submitter Submitter
	resolver  *location.Resolver

	// redirectDelay and onSuccess model the delayed navigation after a
	// successful submission.
	redirectDelay time.Duration
	onSuccess     func(*models.SubmissionReceipt)

	mu          sync.Mutex
	phase       Phase
	slots       [models.PhotoSlotCount]*photos.Slot
	draftID     int64
	description string
	district    string
	loc         *models.Location
	errs        map[string]string
	submitting  bool
	restored    bool
	closed      bool
}

// Option tweaks a Controller at construction.
type Option func(*Controller)

// WithRedirectDelay overrides the post-success navigation delay.
func WithRedirectDelay(d time.Duration) Option {
	return func(c *Controller) { c.redirectDelay = d }
}

// WithOnSuccess registers the navigation callback fired after the redirect
// delay on successful submission.
func WithOnSuccess(fn func(*models.SubmissionReceipt)) Option {
	return func(c *Controller) { c.onSuccess = fn }
}

// NewController mounts an empty form.
func NewController(store *draft.Store, submitter Submitter, resolver *location.Resolver, opts ...Option) *Controller {
	c := &Controller{
		store:         store,
		submitter:     submitter,
		resolver:      resolver,
		redirectDelay: SuccessRedirectDelay,
		slots:         photos.NewSlots(),
		errs:          make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Slot exposes one of the three photo slots for display.
func (c *Controller) Slot(i int) *photos.Slot {
	return c.slots[i]
}

// Errors returns a copy of the current validation error set.
func (c *Controller) Errors() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.errs))
	for k, v := range c.errs {
		out[k] = v
	}
	return out
}

func (c *Controller) clearFieldError(field string) {
	c.mu.Lock()
	delete(c.errs, field)
	c.mu.Unlock()
}

// SetDescription updates the free-text description, capped at 200 characters
// on every mutation the way the input itself caps it.
func (c *Controller) SetDescription(s string) {
	runes := []rune(s)
	if len(runes) > models.MaxDescriptionLen {
		s = string(runes[:models.MaxDescriptionLen])
	}
	c.mu.Lock()
	c.description = s
	c.mu.Unlock()
}

// SetDistrict picks a district from the closed list. Unknown values are
// rejected without touching state; the empty string clears the selection.
func (c *Controller) SetDistrict(s string) error {
	s = strings.ToLower(strings.TrimSpace(s))
	if s != "" && !models.IsValidDistrict(s) {
		return errors.Errorf("unknown district %q", s)
	}
	c.mu.Lock()
	c.district = s
	c.mu.Unlock()
	if s != "" {
		c.clearFieldError(FieldDistrict)
	}
	return nil
}

// TagLocation performs a single device position fix and resolves its address.
// The returned error is one of the location kinds, each warranting its own
// remedial message; the form stays usable regardless.
func (c *Controller) TagLocation(ctx context.Context) (*models.Location, error) {
	coords, info, err := c.resolver.RequestDeviceLocation(ctx)
	if err != nil {
		return nil, err
	}
	return c.applyLocation(coords, info), nil
}

// PickLocation accepts a manually picked map point; it resolves the address
// exactly like a GPS fix would.
func (c *Controller) PickLocation(ctx context.Context, coords location.Coordinates) *models.Location {
	coords, info := c.resolver.SelectFromMap(ctx, coords)
	return c.applyLocation(coords, info)
}

func (c *Controller) applyLocation(coords location.Coordinates, info location.AddressInfo) *models.Location {
	loc := &models.Location{
		Latitude:  coords.Latitude,
		Longitude: coords.Longitude,
		Address:   info.Address,
		RoadName:  info.RoadName,
	}
	c.mu.Lock()
	if c.closed {
		// The form unmounted while the fix was in flight; discard quietly.
		c.mu.Unlock()
		return loc
	}
	c.loc = loc
	delete(c.errs, FieldLocation)
	c.mu.Unlock()
	return loc
}

// BindPhoto binds an image into slot i and returns its preview. A preview
// decode failure still binds the file; only type and size rejections leave
// the slot untouched.
func (c *Controller) BindPhoto(i int, filename string, content []byte) (string, error) {
	preview, err := c.slots[i].Bind(filename, content)
	if err != nil && !errors.Is(err, photos.ErrPreviewDecode) {
		return "", err
	}
	c.clearFieldError(FieldPhotos)
	return preview, err
}

// UnbindPhoto empties slot i.
func (c *Controller) UnbindPhoto(i int) {
	c.slots[i].Unbind()
}

// Draft snapshots the current form state.
func (c *Controller) Draft() *models.ReportDraft {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := &models.ReportDraft{
		ID:          c.draftID,
		Description: c.description,
		District:    c.district,
	}
	if c.loc != nil {
		loc := *c.loc
		d.Location = &loc
	}
	for i, slot := range c.slots {
		d.Photos[i] = slot.Attachment()
	}
	return d
}

// SaveDraft persists the current state minus photo bindings.
func (c *Controller) SaveDraft() error {
	d := c.Draft()
	if err := c.store.Save(d); err != nil {
		return err
	}
	c.mu.Lock()
	c.draftID = d.ID
	c.mu.Unlock()
	return nil
}

// RestoreDraft loads a stored draft into the form, once at most per mount.
// found reports whether anything was restored; fresh gates the "draft
// restored" notice, not the restoration itself.
func (c *Controller) RestoreDraft() (found, fresh bool, err error) {
	c.mu.Lock()
	if c.restored {
		c.mu.Unlock()
		return false, false, nil
	}
	c.restored = true
	c.mu.Unlock()

	d, fresh, err := c.store.Load()
	if err != nil {
		// A transient read failure must not consume the one restore this
		// mount gets.
		c.mu.Lock()
		c.restored = false
		c.mu.Unlock()
		return false, false, err
	}
	if d == nil {
		return false, false, nil
	}

	c.mu.Lock()
	c.draftID = d.ID
	c.description = d.Description
	c.district = d.District
	c.loc = d.Location
	// Photo binaries are never persisted; all three slots stay empty.
	c.mu.Unlock()
	return true, fresh, nil
}

// validate recomputes the whole error set from scratch. All failures surface
// simultaneously.
func (c *Controller) validate(d *models.ReportDraft) map[string]string {
	errs := make(map[string]string)
	if d.BoundPhotoCount() != models.PhotoSlotCount {
		errs[FieldPhotos] = msgPhotos
	}
	if d.Location == nil {
		errs[FieldLocation] = msgLocation
	}
	if d.District == "" {
		errs[FieldDistrict] = msgDistrict
	}
	// Description is optional; its length is enforced at the input level.
	return errs
}

// Submit runs the Validating phase and, only when it passes in full, hands
// the draft to the submission pipeline. While a submission is pending,
// further submits return ErrSubmitInFlight without invoking the pipeline.
func (c *Controller) Submit(ctx context.Context) (*models.SubmissionReceipt, error) {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	c.submitting = true
	c.phase = Validating
	c.mu.Unlock()

	d := c.Draft()
	errs := c.validate(d)

	c.mu.Lock()
	if len(errs) > 0 {
		c.errs = errs
		c.phase = Editing
		c.submitting = false
		c.mu.Unlock()
		return nil, ErrValidationFailed
	}
	c.errs = make(map[string]string)
	c.phase = Submitting
	c.mu.Unlock()

	receipt, err := c.submitter.Submit(ctx, d)

	if err == nil {
		// The draft must not survive a successful submission, whatever a
		// concurrent save or an unmount mid-flight thinks.
		if clearErr := c.store.Clear(); clearErr != nil {
			log.Printf("clearing draft after submission: %v", clearErr)
		}
	}

	c.mu.Lock()
	c.submitting = false
	if c.closed {
		// Unmounted mid-flight: discard, don't touch in-memory state.
		c.mu.Unlock()
		return receipt, err
	}
	if err != nil {
		// Back to Editing with every field intact so the user can retry.
		c.phase = Editing
		c.mu.Unlock()
		return nil, err
	}
	c.phase = Succeeded
	c.resetLocked()
	c.mu.Unlock()

	if c.onSuccess != nil {
		time.AfterFunc(c.redirectDelay, func() {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.onSuccess(receipt)
			}
		})
	}
	return receipt, nil
}

func (c *Controller) resetLocked() {
	c.draftID = 0
	c.description = ""
	c.district = ""
	c.loc = nil
	for _, slot := range c.slots {
		slot.Unbind()
	}
}

// Close marks the form unmounted. In-flight geolocation or submission
// completions become silent no-ops.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
