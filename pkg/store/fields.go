package store

import (
	"igsync/pkg/instagram"
)

// ProfileFields maps a fetched profile onto the accounts table columns.
func ProfileFields(p *instagram.Profile) map[string]interface{} {
	fields := map[string]interface{}{
		"Username":    p.Username,
		"Bio":         p.Biography,
		"PFP":         attachment(p.PictureURL()),
		"Followers":   p.FollowerCount,
		"Following":   p.FollowingCount,
		"Media Count": p.MediaCount,
		"Full Name":   p.FullName,
		"Bio Link":    p.ExternalURL,
		FieldScraped:  true,
	}
	return fields
}

// ContentFields maps a normalized post onto the content table columns. The
// Account column links back to the account row.
func ContentFields(account Account, post instagram.Post) map[string]interface{} {
	fields := map[string]interface{}{
		FieldContentID: post.ID,
		"Caption":      post.Caption,
		"Play Count":   post.PlayCount,
		"Like Count":   post.LikeCount,
		"Comments":     post.CommentCount,
		"Media Type":   post.MediaType,
	}
	if account.RecordID != "" {
		fields["Account"] = []string{account.RecordID}
	}
	if post.SoundArtist != "" {
		fields["Sound Artist"] = post.SoundArtist
	}
	if post.SoundID != "" {
		fields["Sound Used"] = post.SoundID
	}
	if post.VideoURL != "" {
		fields["Content"] = attachment(post.VideoURL)
	}
	if post.ThumbnailURL != "" {
		fields["Thumbnail"] = attachment(post.ThumbnailURL)
	}
	return fields
}

func attachment(url string) []map[string]string {
	if url == "" {
		return []map[string]string{}
	}
	return []map[string]string{{"url": url}}
}
