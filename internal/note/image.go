package note

import (
	"encoding/base64"
	"errors"
	"strings"
)

// ErrInvalidImage is returned when an image payload is neither a base64 data
// URL nor raw base64.
var ErrInvalidImage = errors.New("invalid image payload")

const defaultImageMIME = "image/jpeg"

// Image is a decoded view of a note's image field.
type Image struct {
	MIMEType string
	Base64   string
}

// DataURL renders the image as a data URL, the form stored in Note.Image.
func (i Image) DataURL() string {
	return "data:" + i.MIMEType + ";base64," + i.Base64
}

// ParseImage accepts either a data URL ("data:image/png;base64,....") or a
// bare base64 string, and validates the payload.
func ParseImage(s string) (Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Image{}, ErrInvalidImage
	}

	img := Image{MIMEType: defaultImageMIME, Base64: s}
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return Image{}, ErrInvalidImage
		}
		if mt := strings.TrimSuffix(meta, ";base64"); mt != "" {
			img.MIMEType = mt
		}
		img.Base64 = payload
	}

	if img.Base64 == "" {
		return Image{}, ErrInvalidImage
	}
	if _, err := base64.StdEncoding.DecodeString(img.Base64); err != nil {
		return Image{}, ErrInvalidImage
	}
	return img, nil
}
