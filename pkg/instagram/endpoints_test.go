package instagram

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = "https://" + DefaultHost

func TestInfoURL(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		account  string
		expected string
	}{
		{
			name:     "simple username",
			base:     testBase,
			account:  "testuser",
			expected: testBase + "/v1/info?username_or_id_or_url=testuser",
		},
		{
			name:     "trailing slash on base",
			base:     testBase + "/",
			account:  "test.user",
			expected: testBase + "/v1/info?username_or_id_or_url=test.user",
		},
		{
			name:     "profile url is escaped",
			base:     testBase,
			account:  "https://www.instagram.com/test_user/",
			expected: testBase + "/v1/info?username_or_id_or_url=https%3A%2F%2Fwww.instagram.com%2Ftest_user%2F",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := InfoURL(tt.base, tt.account)
			assert.Equal(t, tt.expected, result)

			_, err := url.Parse(result)
			assert.NoError(t, err)
		})
	}
}

func TestPostsURL(t *testing.T) {
	t.Run("first page", func(t *testing.T) {
		result := PostsURL(testBase, "testuser", "")
		assert.Equal(t, testBase+"/v1/posts?username_or_id_or_url=testuser", result)
	})

	t.Run("with cursor", func(t *testing.T) {
		result := PostsURL(testBase, "testuser", "QVFD+abc==")
		parsed, err := url.Parse(result)
		require.NoError(t, err)
		assert.Equal(t, "/v1/posts", parsed.Path)
		assert.Equal(t, "testuser", parsed.Query().Get("username_or_id_or_url"))
		assert.Equal(t, "QVFD+abc==", parsed.Query().Get("pagination_token"))
	})
}

func TestGetPostURL(t *testing.T) {
	assert.Equal(t, "https://www.instagram.com/p/ABC123/", GetPostURL("ABC123"))
	assert.Equal(t, "", GetPostURL(""))
}

func TestGetUserProfileURL(t *testing.T) {
	assert.Equal(t, "https://www.instagram.com/testuser/", GetUserProfileURL("testuser"))
	assert.Equal(t, "", GetUserProfileURL(""))
}

func TestIsValidUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		expected bool
	}{
		{name: "valid simple username", username: "testuser", expected: true},
		{name: "valid with underscore", username: "test_user", expected: true},
		{name: "valid with dot", username: "test.user", expected: true},
		{name: "valid with numbers", username: "user123", expected: true},
		{name: "valid uppercase", username: "TestUser", expected: true},
		{name: "exactly 30 characters", username: "abcdefghijabcdefghijabcdefghij", expected: true},
		{name: "empty", username: "", expected: false},
		{name: "too long", username: "abcdefghijabcdefghijabcdefghijk", expected: false},
		{name: "with space", username: "test user", expected: false},
		{name: "with dash", username: "test-user", expected: false},
		{name: "with at sign", username: "@testuser", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsValidUsername(tt.username))
		})
	}
}

func TestSanitizeUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		expected string
	}{
		{name: "clean username", username: "testuser", expected: "testuser"},
		{name: "username with @ prefix", username: "@testuser", expected: "testuser"},
		{name: "username with trailing slash", username: "testuser/", expected: "testuser"},
		{name: "surrounding spaces", username: "  testuser ", expected: "testuser"},
		{name: "multiple trailing chars", username: "testuser// ", expected: "testuser"},
		{name: "profile url", username: "https://www.instagram.com/testuser/", expected: "testuser"},
		{name: "profile url with query", username: "https://www.instagram.com/testuser/?hl=en", expected: "testuser"},
		{name: "bare host", username: "instagram.com/testuser", expected: "testuser"},
		{name: "empty username", username: "", expected: ""},
		{name: "just @", username: "@", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeUsername(tt.username))
		})
	}
}
