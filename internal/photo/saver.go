// Package photo downloads profile photos and stores them as JPEG files named
// after the row they belong to.
package photo

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	// Decoders for the formats profile sites serve.
	_ "image/gif"
	_ "image/png"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"profile-enricher/internal/retry"
)

// RelDir is the directory prefix of the paths written into the output.
const RelDir = "photos"

const (
	jpegQuality = 85
	// maxSide bounds the longer edge of a stored photo.
	maxSide = 800
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Downloader fetches raw bytes.
type Downloader interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Saver stores photos below Dir as <row id>.jpg.
type Saver struct {
	dl  Downloader
	Dir string
}

func NewSaver(dl Downloader, dir string) *Saver {
	return &Saver{dl: dl, Dir: dir}
}

// Save downloads imageURL, converts it to JPEG and writes it for rowID. The
// returned path is relative, e.g. photos/21CS042.jpg.
func (s *Saver) Save(ctx context.Context, imageURL, rowID string) (string, error) {
	data, err := s.dl.Get(ctx, imageURL)
	if err != nil {
		return "", err
	}
	name := FileName(rowID)
	if err := s.Write(data, name); err != nil {
		return "", err
	}
	rel := path.Join(RelDir, name)
	logrus.Debugf("photo saved: %s", rel)
	return rel, nil
}

// Write decodes data and stores it as Dir/name.
func (s *Saver) Write(data []byte, name string) error {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// Usually an HTML login wall instead of the image.
		return retry.Permanent(fmt.Errorf("downloaded content is not an image: %w", err))
	}
	logrus.Debugf("decoded %s photo %dx%d", format, src.Bounds().Dx(), src.Bounds().Dy())

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create photos directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.Dir, ".photo-*")
	if err != nil {
		return fmt.Errorf("failed to create photo file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := jpeg.Encode(tmp, flatten(src), &jpeg.Options{Quality: jpegQuality}); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode photo: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.Dir, name))
}

// flatten draws src onto an opaque white canvas, shrinking it so the longer
// side is at most maxSide.
func flatten(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if long := max(w, h); long > maxSide {
		w = w * maxSide / long
		h = h * maxSide / long
	}
	dst := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// FileName returns the file name used for rowID.
func FileName(rowID string) string {
	name := strings.Trim(unsafeChars.ReplaceAllString(rowID, "_"), "._")
	if name == "" {
		name = "unknown"
	}
	return name + ".jpg"
}
