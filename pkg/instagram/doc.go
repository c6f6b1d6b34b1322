// Package instagram is the client for the RapidAPI Instagram proxy.
//
// The client makes one logical call per profile or per page of posts. Each
// HTTP attempt is admitted by the rate Governor first, as an account call for
// /v1/info and a post call for /v1/posts. Network errors, 429 and 5xx
// responses are retried with exponential backoff up to the configured
// ceiling; 401/403 and 404 are returned straight away. Every failure reaches
// the caller as *errors.FetchError.
//
// Example usage:
//
//	client := instagram.NewClient(cfg.Instagram, cfg.Retry, governor)
//
//	profile, err := client.FetchProfile(ctx, "username")
//	if errors.IsAuth(err) {
//	    // the API key was rejected; nothing else will succeed
//	}
//
//	page, err := client.FetchPosts(ctx, "username", "")
//	for err == nil && !page.Done() {
//	    page, err = client.FetchPosts(ctx, "username", page.NextCursor)
//	}
package instagram
