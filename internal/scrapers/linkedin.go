package scrapers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"profile-enricher/internal/model"
	"profile-enricher/internal/platform"
)

// LinkedIn finds the profile photo of a public profile and stores it through
// the PhotoSaver. When a Browser is set it is tried first since the photo is
// often injected by JavaScript.
type LinkedIn struct {
	client  *Client
	photos  PhotoSaver
	Browser PhotoFinder
	BaseURL string
}

func NewLinkedIn(client *Client, photos PhotoSaver) *LinkedIn {
	return &LinkedIn{client: client, photos: photos, BaseURL: "https://www.linkedin.com"}
}

func (l *LinkedIn) Fetch(ctx context.Context, req model.FetchRequest) (model.Fields, error) {
	clean, slug, err := profileHandle(req.URL, platform.LinkedIn)
	if err != nil {
		return nil, err
	}
	target := baseURL(l.BaseURL, "https://www.linkedin.com") + "/in/" + url.PathEscape(slug)

	photoURL := ""
	if l.Browser != nil {
		photoURL, err = l.Browser.FindPhoto(ctx, clean)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logrus.Warnf("linkedin %s: browser lookup failed, falling back to http: %v", slug, err)
			photoURL = ""
		}
	}

	if photoURL == "" {
		body, err := l.client.Get(ctx, target)
		if err != nil {
			if errors.Is(err, ErrBlocked) {
				logrus.Warnf("linkedin returned 999 (bot detection) for %s", target)
			}
			return nil, err
		}
		photoURL, err = findPhotoURL(body)
		if err != nil {
			return nil, err
		}
	}

	if photoURL == "" {
		return model.Fields{platform.ColPhotoPath: platform.NotAvailable}, nil
	}
	if l.photos == nil {
		return nil, fmt.Errorf("no photo store configured")
	}

	path, err := l.photos.Save(ctx, photoURL, req.RowID)
	if err != nil {
		return nil, fmt.Errorf("failed to save profile photo: %w", err)
	}
	return model.Fields{platform.ColPhotoPath: path}, nil
}

// findPhotoURL looks for the og:image tag, then for a profile-displayphoto
// image, then for any LinkedIn media image of a profile.
func findPhotoURL(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse linkedin profile: %w", err)
	}

	if og, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok {
		if strings.Contains(og, "licdn.com") || strings.Contains(og, "linkedin.com") {
			return og, nil
		}
	}
	if src, ok := doc.Find(`img[src*="profile-displayphoto"]`).First().Attr("src"); ok && src != "" {
		return src, nil
	}

	found := ""
	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, _ := img.Attr("src")
		if isProfileMedia(src) {
			found = src
			return false
		}
		return true
	})
	return found, nil
}

func isProfileMedia(src string) bool {
	return strings.Contains(src, "media.licdn.com") &&
		strings.Contains(src, "profile") &&
		!strings.Contains(src, "ghost") &&
		!strings.HasPrefix(src, "data:")
}
