// Package imaging validates uploaded scan files and derives preview images.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrUnsupportedExtension = errors.New("unsupported file extension")
	ErrContentMismatch      = errors.New("file content does not match its extension")
	ErrEmptyFile            = errors.New("file is empty")
	ErrImageTooLarge        = errors.New("image dimensions too large")
)

// MaxImagePixels caps width*height of decoded images. Compressed size says
// little about the memory a decode needs.
const MaxImagePixels = 8192 * 8192

// AllowedExtensions maps accepted upload extensions to the content types that
// may back them.
var AllowedExtensions = map[string][]string{
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".png":  {"image/png"},
	".dcm":  {"application/dicom"},
}

type Upload struct {
	Extension   string
	ContentType string
}

func (u Upload) IsDICOM() bool {
	return u.Extension == ".dcm"
}

// ValidateUpload checks the extension case-insensitively and sniffs data to
// confirm the content agrees with it.
func ValidateUpload(filename string, data []byte) (Upload, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	allowed, ok := AllowedExtensions[ext]
	if !ok {
		return Upload{}, fmt.Errorf("%w: %q (allowed: jpg, jpeg, png, dcm)", ErrUnsupportedExtension, ext)
	}
	if len(data) == 0 {
		return Upload{}, ErrEmptyFile
	}

	detected := mimetype.Detect(data)
	for _, ct := range allowed {
		if !detected.Is(ct) {
			continue
		}
		upload := Upload{Extension: ext, ContentType: ct}
		if !upload.IsDICOM() {
			if err := checkDimensions(data); err != nil {
				return Upload{}, err
			}
		}
		return upload, nil
	}
	return Upload{}, fmt.Errorf("%w: %s is %s", ErrContentMismatch, ext, detected.String())
}

// checkDimensions reads only the image header.
func checkDimensions(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: unreadable image header: %v", ErrContentMismatch, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, MaxImagePixels)
	}
	return nil
}
