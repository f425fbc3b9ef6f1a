// Package photos manages the three photo attachment slots of a report:
// binding a captured or picked image, validating it, and producing a preview
// thumbnail for display.
package photos

import (
	"bytes"
	"encoding/base64"
	"image/jpeg"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"github.com/sabahroadcare/roadcare/models"
)

// MaxFileSize is the canonical upload cap.
const MaxFileSize = 5 << 20 // 5 MB

// previewWidth matches the thumbnail size used elsewhere in the pipeline.
const previewWidth = 200

var (
	ErrInvalidFileType = errors.New("please select an image file (JPG, PNG, etc.)")
	ErrFileTooLarge    = errors.New("file size must be less than 5MB")
	ErrPreviewDecode   = errors.New("error reading file")
	ErrEmptySlot       = errors.New("photo slot is empty")
)

// Slot is one of the three fixed photo positions. A slot either holds exactly
// one bound attachment or is empty. Camera capture, gallery pick and
// drag-and-drop all converge on Bind.
type Slot struct {
	Name      string
	Label     string
	Guideline string

	mu         sync.Mutex
	attachment *models.PhotoAttachment
}

// NewSlots returns the fixed report slots: top view, far view and close-up.
func NewSlots() [models.PhotoSlotCount]*Slot {
	return [models.PhotoSlotCount]*Slot{
		{Name: "top", Label: "Top View", Guideline: "Directly above the damage"},
		{Name: "far", Label: "Far View", Guideline: "A few metres back, showing the road"},
		{Name: "close", Label: "Close-Up", Guideline: "Close enough to judge depth"},
	}
}

// Bind validates and stores an image in the slot and returns its preview data
// URL. A rejected file leaves the slot unchanged. When the payload is a valid
// image by type and size but cannot be decoded for preview, the file is still
// bound for submission and ErrPreviewDecode is returned with an empty preview.
func (s *Slot) Bind(filename string, content []byte) (string, error) {
	contentType := http.DetectContentType(content)
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrInvalidFileType
	}
	if int64(len(content)) > MaxFileSize {
		return "", ErrFileTooLarge
	}

	attachment := &models.PhotoAttachment{
		Filename: filepath.Base(filename),
		MIMEType: contentType,
		Size:     int64(len(content)),
		Content:  content,
	}

	s.mu.Lock()
	s.attachment = attachment
	s.mu.Unlock()

	preview, err := generatePreview(content)
	if err != nil {
		return "", errors.Wrapf(ErrPreviewDecode, "slot %s: %v", s.Name, err)
	}
	attachment.Preview = preview
	return preview, nil
}

// BindFile reads path from disk and binds it.
func (s *Slot) BindFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "reading %s", path)
	}
	return s.Bind(path, content)
}

// Unbind clears both the stored file and its preview.
func (s *Slot) Unbind() {
	s.mu.Lock()
	s.attachment = nil
	s.mu.Unlock()
}

// Attachment returns the bound image, or nil when the slot is empty.
func (s *Slot) Attachment() *models.PhotoAttachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachment
}

// Empty reports whether nothing is bound.
func (s *Slot) Empty() bool {
	return s.Attachment() == nil
}

// Preview returns the bound image's preview data URL, empty when the slot is
// empty or preview generation failed.
func (s *Slot) Preview() string {
	a := s.Attachment()
	if a == nil {
		return ""
	}
	return a.Preview
}

// generatePreview decodes the image and renders a small JPEG thumbnail as a
// data URL, the Go stand-in for FileReader.readAsDataURL.
func generatePreview(content []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(content))
	if err != nil {
		return "", errors.Wrap(err, "decoding image")
	}

	thumbnail := resize.Resize(previewWidth, 0, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumbnail, nil); err != nil {
		return "", errors.Wrap(err, "encoding thumbnail")
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
