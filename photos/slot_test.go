package photos

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestBindRoundTrip(t *testing.T) {
	slot := NewSlots()[0]
	content := pngBytes(t, 8, 8)

	preview, err := slot.Bind("pothole.png", content)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(preview, "data:image/jpeg;base64,"))

	a := slot.Attachment()
	require.NotNil(t, a)
	require.Equal(t, "pothole.png", a.Filename)
	require.Equal(t, content, a.Content)
	require.Equal(t, "image/png", a.MIMEType)
	require.Equal(t, preview, slot.Preview())

	slot.Unbind()
	require.True(t, slot.Empty())
	require.Empty(t, slot.Preview())
}

func TestBindRejectsNonImage(t *testing.T) {
	slot := NewSlots()[1]

	_, err := slot.Bind("notes.txt", []byte("definitely not an image"))
	require.ErrorIs(t, err, ErrInvalidFileType)
	require.True(t, slot.Empty())
}

func TestBindRejectsOversizedFile(t *testing.T) {
	slot := NewSlots()[2]
	content := pngBytes(t, 8, 8)
	content = append(content, bytes.Repeat([]byte{0}, MaxFileSize)...)

	_, err := slot.Bind("huge.png", content)
	require.ErrorIs(t, err, ErrFileTooLarge)
	require.True(t, slot.Empty())
}

func TestBindRejectionKeepsPreviousBinding(t *testing.T) {
	slot := NewSlots()[0]
	good := pngBytes(t, 4, 4)
	_, err := slot.Bind("first.png", good)
	require.NoError(t, err)

	_, err = slot.Bind("second.txt", []byte("plain text"))
	require.ErrorIs(t, err, ErrInvalidFileType)

	a := slot.Attachment()
	require.NotNil(t, a)
	require.Equal(t, "first.png", a.Filename)
}

func TestBindPreviewFailureStillBinds(t *testing.T) {
	slot := NewSlots()[0]
	// Valid PNG signature, garbage body: passes the type sniff, fails decode.
	corrupt := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0xAB}, 64)...)

	preview, err := slot.Bind("corrupt.png", corrupt)
	require.True(t, errors.Is(err, ErrPreviewDecode))
	require.Empty(t, preview)

	// The file is still accepted for submission purposes.
	a := slot.Attachment()
	require.NotNil(t, a)
	require.Equal(t, "corrupt.png", a.Filename)
	require.Empty(t, a.Preview)
}

func TestLastWriteToSlotWins(t *testing.T) {
	slot := NewSlots()[0]
	_, err := slot.Bind("first.png", pngBytes(t, 4, 4))
	require.NoError(t, err)
	_, err = slot.Bind("second.png", pngBytes(t, 6, 6))
	require.NoError(t, err)
	require.Equal(t, "second.png", slot.Attachment().Filename)
}
