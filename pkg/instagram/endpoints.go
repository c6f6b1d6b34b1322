package instagram

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// DefaultHost is the RapidAPI proxy host
	DefaultHost = "instagram-scraper-api2.p.rapidapi.com"

	// InfoEndpoint returns profile metadata
	InfoEndpoint = "/v1/info"

	// PostsEndpoint returns a page of posts
	PostsEndpoint = "/v1/posts"

	// PublicURL is the public Instagram site
	PublicURL = "https://www.instagram.com"
)

// InfoURL constructs the URL for fetching an account's profile
func InfoURL(baseURL, account string) string {
	params := url.Values{}
	params.Set("username_or_id_or_url", account)

	return fmt.Sprintf("%s%s?%s", strings.TrimRight(baseURL, "/"), InfoEndpoint, params.Encode())
}

// PostsURL constructs the URL for one page of an account's posts. An empty
// cursor requests the first page.
func PostsURL(baseURL, account, cursor string) string {
	params := url.Values{}
	params.Set("username_or_id_or_url", account)
	if cursor != "" {
		params.Set("pagination_token", cursor)
	}

	return fmt.Sprintf("%s%s?%s", strings.TrimRight(baseURL, "/"), PostsEndpoint, params.Encode())
}

// GetPostURL constructs the public URL for a specific post
func GetPostURL(shortcode string) string {
	if shortcode == "" {
		return ""
	}
	return fmt.Sprintf("%s/p/%s/", PublicURL, shortcode)
}

// GetUserProfileURL constructs the public profile URL for a user
func GetUserProfileURL(username string) string {
	if username == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/", PublicURL, username)
}

// IsValidUsername checks if a username is valid according to Instagram rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}

	// letters, numbers, periods and underscores only
	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}

// SanitizeUsername trims the forms handles are usually pasted in: a leading
// @, surrounding spaces, a trailing slash or a full profile URL.
func SanitizeUsername(username string) string {
	username = strings.TrimSpace(username)
	if i := strings.IndexAny(username, "?#"); i >= 0 {
		username = username[:i]
	}
	for _, prefix := range []string{PublicURL + "/", "https://instagram.com/", "instagram.com/", "www.instagram.com/"} {
		username = strings.TrimPrefix(username, prefix)
	}
	username = strings.TrimPrefix(username, "@")
	return strings.TrimRight(username, "/ ")
}
