// Package media manages a team's shared photos and videos, both uploaded
// files and linked external videos.
package media

import "time"

// Type distinguishes photos from videos.
type Type string

const (
	TypePhoto Type = "photo"
	TypeVideo Type = "video"
)

// StorageType says where the bytes live.
type StorageType string

const (
	StorageUpload   StorageType = "upload"   // file under the storage root
	StorageExternal StorageType = "external" // embedded external URL
)

// Item is one media entry on a team's board.
type Item struct {
	ID             string      `json:"id"`
	TeamID         string      `json:"team_id"`
	UploaderUserID string      `json:"uploader_user_id"`
	UploaderName   string      `json:"uploader_name,omitempty"`
	MediaType      Type        `json:"media_type"`
	StorageType    StorageType `json:"storage_type"`
	Title          string      `json:"title"`
	Description    string      `json:"description,omitempty"`
	GameDate       *time.Time  `json:"game_date,omitempty"`
	FilePath       string      `json:"file_path,omitempty"`
	ExternalURL    string      `json:"external_url,omitempty"`
	ThumbnailURL   string      `json:"thumbnail_url,omitempty"`
	MimeType       string      `json:"mime_type,omitempty"`
	FileSize       int64       `json:"file_size,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}
