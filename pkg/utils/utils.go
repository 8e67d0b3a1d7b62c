package utils

import (
	"WeaponGuard/internal/api/weapon"
	"WeaponGuard/pkg/response"
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	jpegQuality = 90

	defaultMaxFileSize = 20 * 1024 * 1024
	// DefaultMaxPixels bounds the decoded bitmap, roughly an 8000x5000 photo.
	DefaultMaxPixels = 40_000_000
)

type IUtils interface {
	NewULIDFromTimestamp(t time.Time) (string, error)
	ValidateImageFile(file *multipart.FileHeader) error
	ReadImageFile(file *multipart.FileHeader) ([]byte, error)
	DecodeImage(data []byte) (image.Image, string, error)
	EncodeJPEG(img image.Image) ([]byte, error)
	ToDataURI(mimeType string, data []byte) string
	HashBytes(data []byte) string
}

type utils struct {
	maxFileSize int64
	maxPixels   int64
}

// New builds the upload helpers. Non-positive limits fall back to the defaults.
func New(maxFileSize, maxPixels int64) IUtils {
	if maxFileSize <= 0 {
		maxFileSize = defaultMaxFileSize
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &utils{
		maxFileSize: maxFileSize,
		maxPixels:   maxPixels,
	}
}

func (u *utils) NewULIDFromTimestamp(t time.Time) (string, error) {
	ms := ulid.Timestamp(t)
	entropy := ulid.Monotonic(rand.Reader, 0)

	id, err := ulid.New(ms, entropy)
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

func (u *utils) ValidateImageFile(file *multipart.FileHeader) error {
	if file == nil {
		return weapon.ErrNoFile
	}

	if file.Size == 0 {
		return weapon.ErrEmptyFile
	}

	if file.Size > u.maxFileSize {
		return weapon.ErrFileTooLarge
	}

	return nil
}

func (u *utils) ReadImageFile(file *multipart.FileHeader) ([]byte, error) {
	src, err := file.Open()
	if err != nil {
		return nil, response.Wrap(weapon.ErrInvalidImage, err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, u.maxFileSize+1))
	if err != nil {
		return nil, response.Wrap(weapon.ErrInvalidImage, err)
	}

	if len(data) == 0 {
		return nil, weapon.ErrEmptyFile
	}
	if int64(len(data)) > u.maxFileSize {
		return nil, weapon.ErrFileTooLarge
	}

	return data, nil
}

// DecodeImage decodes any registered format (jpeg, png, gif, bmp, tiff, webp).
// The header is checked against the pixel budget before the bitmap is allocated.
func (u *utils) DecodeImage(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", weapon.ErrEmptyFile
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", response.Wrap(weapon.ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", weapon.ErrInvalidImage
	}
	if int64(cfg.Width)*int64(cfg.Height) > u.maxPixels {
		return nil, "", response.Wrap(weapon.ErrInvalidImage,
			errors.Errorf("%dx%d exceeds the %d pixel limit", cfg.Width, cfg.Height, u.maxPixels))
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", response.Wrap(weapon.ErrInvalidImage, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, "", weapon.ErrInvalidImage
	}

	return img, format, nil
}

func (u *utils) EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (u *utils) ToDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func (u *utils) HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
