package media

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// EmbedInfo is a normalized external video reference.
type EmbedInfo struct {
	EmbedURL     string
	ThumbnailURL string
}

var youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,}$`)

// YouTubeEmbed recognizes the common YouTube URL shapes (watch, embed,
// shorts, youtu.be) and normalizes them into an embed URL plus a thumbnail.
// Non-YouTube or unrecognizable URLs return ok=false; callers keep the
// original URL in that case.
func YouTubeEmbed(raw string) (EmbedInfo, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return EmbedInfo{}, false
	}

	host := strings.ToLower(u.Host)
	var videoID string
	switch {
	case strings.Contains(host, "youtube.com"):
		switch {
		case u.Path == "/watch":
			videoID = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/embed/"), strings.HasPrefix(u.Path, "/shorts/"):
			videoID = path.Base(u.Path)
		}
	case host == "youtu.be":
		videoID = strings.TrimPrefix(u.Path, "/")
	}

	if !youtubeIDPattern.MatchString(videoID) {
		return EmbedInfo{}, false
	}
	return EmbedInfo{
		EmbedURL:     "https://www.youtube.com/embed/" + videoID,
		ThumbnailURL: "https://img.youtube.com/vi/" + videoID + "/hqdefault.jpg",
	}, true
}

// TypeFromMIME maps a sniffed MIME type onto a media type. Only images and
// videos are accepted.
func TypeFromMIME(mimeType string) (Type, bool) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return TypePhoto, true
	case strings.HasPrefix(mimeType, "video/"):
		return TypeVideo, true
	default:
		return "", false
	}
}
