package instagram

import (
	"bytes"
	"encoding/json"
	"time"
)

// mediaTypeVideo is the API's media_type for clips
const mediaTypeVideo = 2

type infoResponse struct {
	Data *Profile `json:"data"`
}

// Profile is the account metadata returned by /v1/info
type Profile struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	FullName        string `json:"full_name"`
	Biography       string `json:"biography"`
	ExternalURL     string `json:"external_url"`
	ProfilePicURL   string `json:"profile_pic_url"`
	ProfilePicURLHD string `json:"profile_pic_url_hd"`
	FollowerCount   int64  `json:"follower_count"`
	FollowingCount  int64  `json:"following_count"`
	MediaCount      int64  `json:"media_count"`
	IsPrivate       bool   `json:"is_private"`
}

// PictureURL returns the best profile picture available
func (p *Profile) PictureURL() string {
	if p.ProfilePicURLHD != "" {
		return p.ProfilePicURLHD
	}
	return p.ProfilePicURL
}

type postsResponse struct {
	Data struct {
		Items []RawPost `json:"items"`
		Count int       `json:"count"`
	} `json:"data"`
	PaginationToken string `json:"pagination_token"`
}

// RawPost is a single item of /v1/posts as the API sends it
type RawPost struct {
	ID             string         `json:"id"`
	Code           string         `json:"code"`
	Caption        Caption        `json:"caption"`
	LikeCount      int64          `json:"like_count"`
	CommentCount   int64          `json:"comment_count"`
	PlayCount      int64          `json:"play_count"`
	IGPlayCount    int64          `json:"ig_play_count"`
	ViewCount      int64          `json:"view_count"`
	MediaType      int            `json:"media_type"`
	TakenAt        int64          `json:"taken_at"`
	VideoURL       string         `json:"video_url"`
	ThumbnailURL   string         `json:"thumbnail_url"`
	ImageVersions2 ImageVersions  `json:"image_versions2"`
	ClipsMetadata  *ClipsMetadata `json:"clips_metadata"`
}

// Caption accepts both the object form ({"text": ...}) and a bare string.
type Caption struct {
	Text string `json:"text"`
}

func (c *Caption) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		c.Text = ""
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &c.Text)
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	c.Text = obj.Text
	return nil
}

type ImageVersions struct {
	Candidates []ImageCandidate `json:"candidates"`
}

type ImageCandidate struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type ClipsMetadata struct {
	MusicInfo *struct {
		MusicAssetInfo *MusicAssetInfo `json:"music_asset_info"`
	} `json:"music_info"`
}

type MusicAssetInfo struct {
	AudioID       string `json:"audio_id"`
	Title         string `json:"title"`
	DisplayArtist string `json:"display_artist"`
}

// Post is a normalized post ready to be written to the content table.
type Post struct {
	ID           string
	Code         string
	Caption      string
	LikeCount    int64
	CommentCount int64
	PlayCount    int64
	ViewCount    int64
	MediaType    string
	TakenAt      time.Time
	VideoURL     string
	ThumbnailURL string
	SoundArtist  string
	SoundID      string
}

// Normalize flattens the optional and polymorphic parts of a RawPost.
func (r RawPost) Normalize() Post {
	p := Post{
		ID:           r.ID,
		Code:         r.Code,
		Caption:      r.Caption.Text,
		LikeCount:    r.LikeCount,
		CommentCount: r.CommentCount,
		PlayCount:    r.PlayCount,
		ViewCount:    r.ViewCount,
		MediaType:    "Image",
		VideoURL:     r.VideoURL,
		ThumbnailURL: r.ThumbnailURL,
	}
	if p.PlayCount == 0 {
		p.PlayCount = r.IGPlayCount
	}
	if r.MediaType == mediaTypeVideo {
		p.MediaType = "Reel"
	}
	if r.TakenAt > 0 {
		p.TakenAt = time.Unix(r.TakenAt, 0).UTC()
	}
	if p.ThumbnailURL == "" && len(r.ImageVersions2.Candidates) > 0 {
		p.ThumbnailURL = r.ImageVersions2.Candidates[0].URL
	}
	if r.ClipsMetadata != nil && r.ClipsMetadata.MusicInfo != nil && r.ClipsMetadata.MusicInfo.MusicAssetInfo != nil {
		music := r.ClipsMetadata.MusicInfo.MusicAssetInfo
		p.SoundArtist = music.DisplayArtist
		p.SoundID = music.AudioID
	}
	return p
}

// PostsPage is one page of normalized posts.
type PostsPage struct {
	Items      []Post
	NextCursor string
}

// Done reports whether the API signalled there are no further pages
func (p *PostsPage) Done() bool {
	return p.NextCursor == ""
}
