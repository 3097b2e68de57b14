package sniffer

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectHead(t *testing.T) {
	cases := []struct {
		name string
		head []byte
		want ImageType
		ext  string
	}{
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0, 0x00}, TypeJPEG, "jpg"},
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00}, TypePNG, "png"},
		{"gif", []byte("GIF89a....."), TypeGIF, "gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), TypeWEBP, "webp"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DetectHead(tc.head)
			require.NoError(t, err)
			require.Equal(t, tc.want, got.Type)
			require.Equal(t, tc.ext, got.Extension())
		})
	}
}

func TestDetectRejectsNonImages(t *testing.T) {
	for _, head := range [][]byte{nil, []byte("%PDF-1.7"), []byte("<svg xmlns=\"http://www.w3.org/2000/svg\">")} {
		_, err := DetectHead(head)
		require.ErrorIs(t, err, ErrUnknownType)
	}
}

func TestDetectReturnsHead(t *testing.T) {
	body := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, bytes.Repeat([]byte{1}, 1024)...)

	result, head, err := Detect(bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, "image/png", result.MIME)
	require.Len(t, head, 512)

	result, head, err = Detect(bytes.NewReader([]byte{0xff, 0xd8, 0xff, 0xdb}))
	require.NoError(t, err)
	require.Equal(t, TypeJPEG, result.Type)
	require.Len(t, head, 4)
}

func TestMimeTypeFromHTTP(t *testing.T) {
	h := http.Header{}
	require.Empty(t, MimeTypeFromHTTP(h))
	h.Set("Content-Type", "image/png; charset=binary")
	require.Equal(t, "image/png", MimeTypeFromHTTP(h))
}
