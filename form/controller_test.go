package form

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/sabahroadcare/roadcare/draft"
	"github.com/sabahroadcare/roadcare/localstore"
	"github.com/sabahroadcare/roadcare/location"
	"github.com/sabahroadcare/roadcare/models"
)

type fakeSubmitter struct {
	mu      sync.Mutex
	calls   int
	receipt *models.SubmissionReceipt
	err     error
	entered chan struct{}
	release chan struct{}
}

func (f *fakeSubmitter) Submit(_ context.Context, _ *models.ReportDraft) (*models.SubmissionReceipt, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.receipt, f.err
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x * y), B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testController(t *testing.T, submitter Submitter) (*Controller, *localstore.Memory) {
	t.Helper()
	kv := localstore.NewMemory()
	store := draft.NewStore(kv)
	resolver := location.NewResolver(location.Static{
		Point: location.Coordinates{Latitude: 5.9804, Longitude: 116.0735},
	}, "")
	return NewController(store, submitter, resolver, WithRedirectDelay(0)), kv
}

func fillForm(t *testing.T, c *Controller, photoCount int) {
	t.Helper()
	names := []string{"top.png", "far.png", "close.png"}
	for i := 0; i < photoCount; i++ {
		_, err := c.BindPhoto(i, names[i], pngBytes(t, 4, 4))
		require.NoError(t, err)
	}
	require.NoError(t, c.SetDistrict("sandakan"))
	c.PickLocation(context.Background(), location.Coordinates{Latitude: 5.9804, Longitude: 116.0735})
	c.SetDescription("large pothole on the left lane after the traffic lights")
}

func TestSubmitRequiresAllThreePhotos(t *testing.T) {
	for _, photoCount := range []int{0, 1, 2} {
		submitter := &fakeSubmitter{}
		c, _ := testController(t, submitter)
		fillForm(t, c, photoCount)

		_, err := c.Submit(context.Background())
		require.ErrorIs(t, err, ErrValidationFailed)
		require.Equal(t, "Please upload all 3 photos", c.Errors()[FieldPhotos])
		// No network call happens on a failed validation.
		require.Equal(t, 0, submitter.callCount())
		require.Equal(t, Editing, c.Phase())
	}
}

func TestSubmitSurfacesAllErrorsAtOnce(t *testing.T) {
	submitter := &fakeSubmitter{}
	c, _ := testController(t, submitter)

	_, err := c.Submit(context.Background())
	require.ErrorIs(t, err, ErrValidationFailed)

	errs := c.Errors()
	require.Len(t, errs, 3)
	require.Equal(t, "Please upload all 3 photos", errs[FieldPhotos])
	require.Equal(t, "Please tag your location", errs[FieldLocation])
	require.Equal(t, "Please select a district", errs[FieldDistrict])
}

func TestFieldMutationClearsItsError(t *testing.T) {
	submitter := &fakeSubmitter{}
	c, _ := testController(t, submitter)
	_, err := c.Submit(context.Background())
	require.ErrorIs(t, err, ErrValidationFailed)

	require.NoError(t, c.SetDistrict("tawau"))
	require.NotContains(t, c.Errors(), FieldDistrict)

	c.PickLocation(context.Background(), location.Coordinates{Latitude: 5.9, Longitude: 116.0})
	require.NotContains(t, c.Errors(), FieldLocation)

	_, err = c.BindPhoto(0, "top.png", pngBytes(t, 4, 4))
	require.NoError(t, err)
	require.NotContains(t, c.Errors(), FieldPhotos)

	// The other errors stay until their fields change.
	require.NotContains(t, c.Errors(), FieldDistrict)
}

func TestSubmitSuccessClearsDraftAndResetsForm(t *testing.T) {
	submitter := &fakeSubmitter{receipt: &models.SubmissionReceipt{CaseID: "SRC_SAN_2025_09_0001", Status: "Submitted"}}
	c, kv := testController(t, submitter)
	fillForm(t, c, 3)
	require.NoError(t, c.SaveDraft())

	receipt, err := c.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, "SRC_SAN_2025_09_0001", receipt.CaseID)
	require.Equal(t, Succeeded, c.Phase())

	// No draft survives a successful submission.
	_, ok, _ := kv.Get(draft.Key)
	require.False(t, ok)

	d := c.Draft()
	require.Empty(t, d.Description)
	require.Empty(t, d.District)
	require.Nil(t, d.Location)
	require.Equal(t, 0, d.BoundPhotoCount())
}

func TestSubmitFailureKeepsEverything(t *testing.T) {
	submitter := &fakeSubmitter{err: context.DeadlineExceeded}
	c, _ := testController(t, submitter)
	fillForm(t, c, 3)

	_, err := c.Submit(context.Background())
	require.Error(t, err)
	require.Equal(t, Editing, c.Phase())

	// Nothing is lost; the user can retry without redoing work.
	d := c.Draft()
	require.Equal(t, 3, d.BoundPhotoCount())
	require.Equal(t, "sandakan", d.District)
	require.NotNil(t, d.Location)
	require.NotEmpty(t, d.Description)

	// And the retry goes through.
	submitter.err = nil
	submitter.receipt = &models.SubmissionReceipt{CaseID: "SRC_SAN_2025_09_0002"}
	receipt, err := c.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, "SRC_SAN_2025_09_0002", receipt.CaseID)
}

func TestDoubleSubmitFiresPipelineOnce(t *testing.T) {
	submitter := &fakeSubmitter{
		receipt: &models.SubmissionReceipt{CaseID: "SRC_SAN_2025_09_0003"},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c, _ := testController(t, submitter)
	fillForm(t, c, 3)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()
	<-submitter.entered

	// Second submit while the first is pending: rejected, no second call.
	_, err := c.Submit(context.Background())
	require.ErrorIs(t, err, ErrSubmitInFlight)

	close(submitter.release)
	require.NoError(t, <-done)
	require.Equal(t, 1, submitter.callCount())
}

func TestCloseMidSubmitStillClearsDraft(t *testing.T) {
	submitter := &fakeSubmitter{
		receipt: &models.SubmissionReceipt{CaseID: "SRC_SAN_2025_09_0004"},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c, kv := testController(t, submitter)
	fillForm(t, c, 3)
	require.NoError(t, c.SaveDraft())

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()
	<-submitter.entered

	// The user navigates away while the request is pending, then the
	// backend accepts the report.
	c.Close()
	close(submitter.release)
	require.NoError(t, <-done)

	// The clear still wins: no draft survives a successful submission,
	// unmounted or not.
	_, ok, err := kv.Get(draft.Key)
	require.NoError(t, err)
	require.False(t, ok, "draft survived a successful submission")
}

type flakyStore struct {
	*localstore.Memory
	failGets int
}

func (f *flakyStore) Get(key string) (string, bool, error) {
	if f.failGets > 0 {
		f.failGets--
		return "", false, errors.New("store unavailable")
	}
	return f.Memory.Get(key)
}

func TestRestoreDraftRetriesAfterStoreError(t *testing.T) {
	kv := &flakyStore{Memory: localstore.NewMemory(), failGets: 1}
	stored := `{"description":"kept text","savedAt":"` +
		time.Now().Add(-time.Hour).Format(time.RFC3339) + `","id":9}`
	require.NoError(t, kv.Set(draft.Key, stored))

	resolver := location.NewResolver(location.Unsupported{}, "")
	c := NewController(draft.NewStore(kv), &fakeSubmitter{}, resolver, WithRedirectDelay(0))

	_, _, err := c.RestoreDraft()
	require.Error(t, err)

	// The failed attempt did not burn the one restore this mount gets.
	found, fresh, err := c.RestoreDraft()
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, fresh)
	require.Equal(t, "kept text", c.Draft().Description)
}

func TestDescriptionCappedOnEveryMutation(t *testing.T) {
	c, _ := testController(t, &fakeSubmitter{})
	c.SetDescription(strings.Repeat("a", 250))
	require.Len(t, c.Draft().Description, models.MaxDescriptionLen)
}

func TestSetDistrictRejectsUnknownValues(t *testing.T) {
	c, _ := testController(t, &fakeSubmitter{})
	require.Error(t, c.SetDistrict("atlantis"))
	require.Empty(t, c.Draft().District)
	require.NoError(t, c.SetDistrict("Kota Kinabalu"))
	require.Equal(t, "kota kinabalu", c.Draft().District)
}

func TestRestoreDraftOncePerMount(t *testing.T) {
	c, kv := testController(t, &fakeSubmitter{})
	stored := `{"description":"saved text","district":"ranau","location":{"latitude":5.95,"longitude":116.66,"address":"Jalan Ranau"},"savedAt":"` +
		time.Now().Add(-time.Hour).Format(time.RFC3339) + `","id":42}`
	require.NoError(t, kv.Set(draft.Key, stored))

	found, fresh, err := c.RestoreDraft()
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, fresh)

	d := c.Draft()
	require.Equal(t, "saved text", d.Description)
	require.Equal(t, "ranau", d.District)
	require.NotNil(t, d.Location)
	require.Equal(t, 0, d.BoundPhotoCount())

	// A second restore in the same mount is a no-op.
	found, _, err = c.RestoreDraft()
	require.NoError(t, err)
	require.False(t, found)
}

func TestRestoreStaleDraftSkipsNotice(t *testing.T) {
	c, kv := testController(t, &fakeSubmitter{})
	stored := `{"description":"old text","savedAt":"` +
		time.Now().Add(-25*time.Hour).Format(time.RFC3339) + `","id":7}`
	require.NoError(t, kv.Set(draft.Key, stored))

	found, fresh, err := c.RestoreDraft()
	require.NoError(t, err)
	// Restored all the same; only the notice is suppressed.
	require.True(t, found)
	require.False(t, fresh)
	require.Equal(t, "old text", c.Draft().Description)
}

func TestSuccessCallbackFiresAfterDelay(t *testing.T) {
	submitter := &fakeSubmitter{receipt: &models.SubmissionReceipt{CaseID: "SRC_TAW_2025_09_0001"}}
	kv := localstore.NewMemory()
	resolver := location.NewResolver(location.Unsupported{}, "")
	got := make(chan *models.SubmissionReceipt, 1)
	c := NewController(draft.NewStore(kv), submitter, resolver,
		WithRedirectDelay(10*time.Millisecond),
		WithOnSuccess(func(r *models.SubmissionReceipt) { got <- r }),
	)
	fillForm(t, c, 3)

	_, err := c.Submit(context.Background())
	require.NoError(t, err)

	select {
	case r := <-got:
		require.Equal(t, "SRC_TAW_2025_09_0001", r.CaseID)
	case <-time.After(time.Second):
		t.Fatal("success callback never fired")
	}
}

func TestCloseSuppressesSuccessCallback(t *testing.T) {
	submitter := &fakeSubmitter{receipt: &models.SubmissionReceipt{CaseID: "SRC_TAW_2025_09_0002"}}
	kv := localstore.NewMemory()
	resolver := location.NewResolver(location.Unsupported{}, "")
	fired := make(chan struct{}, 1)
	c := NewController(draft.NewStore(kv), submitter, resolver,
		WithRedirectDelay(20*time.Millisecond),
		WithOnSuccess(func(*models.SubmissionReceipt) { fired <- struct{}{} }),
	)
	fillForm(t, c, 3)

	_, err := c.Submit(context.Background())
	require.NoError(t, err)
	c.Close()

	select {
	case <-fired:
		t.Fatal("callback fired after the form was closed")
	case <-time.After(100 * time.Millisecond):
	}
}
