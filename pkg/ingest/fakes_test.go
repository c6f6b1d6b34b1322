package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	errs "igsync/pkg/errors"
	"igsync/pkg/instagram"
	"igsync/pkg/store"
)

type fakeFetcher struct {
	mu       sync.Mutex
	profiles map[string]error
	pages    map[string][]*instagram.PostsPage
	calls    []string
	onFetch  func(account string)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		profiles: map[string]error{},
		pages:    map[string][]*instagram.PostsPage{},
	}
}

func (f *fakeFetcher) FetchProfile(ctx context.Context, account string) (*instagram.Profile, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "profile:"+account)
	err := f.profiles[account]
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook(account)
	}
	if err != nil {
		return nil, err
	}
	return &instagram.Profile{ID: "id-" + account, Username: account, FollowerCount: 100}, nil
}

func (f *fakeFetcher) FetchPosts(ctx context.Context, account, cursor string) (*instagram.PostsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("posts:%s:%s", account, cursor))

	pages := f.pages[account]
	idx := 0
	if cursor != "" {
		fmt.Sscanf(cursor, "page-%d", &idx)
	}
	if idx >= len(pages) {
		return &instagram.PostsPage{}, nil
	}
	return pages[idx], nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// pagesOf builds n pages of one post each, chained by cursor
func pagesOf(account string, n int) []*instagram.PostsPage {
	var pages []*instagram.PostsPage
	for i := 0; i < n; i++ {
		page := &instagram.PostsPage{Items: []instagram.Post{{ID: fmt.Sprintf("%s-post-%d", account, i), MediaType: "Image"}}}
		if i < n-1 {
			page.NextCursor = fmt.Sprintf("page-%d", i+1)
		}
		pages = append(pages, page)
	}
	return pages
}

type fakeStore struct {
	mu        sync.Mutex
	accounts  []store.Account
	listErr   error
	writeErr  map[string]error
	results   map[string]map[string]interface{}
	apiErrors map[string]string
	content   map[string]instagram.Post
	history   int
	// historyErrs fail that many History calls before succeeding
	historyErrs int
}

func newFakeStore(usernames ...string) *fakeStore {
	s := &fakeStore{
		writeErr:  map[string]error{},
		results:   map[string]map[string]interface{}{},
		apiErrors: map[string]string{},
		content:   map[string]instagram.Post{},
	}
	for _, u := range usernames {
		s.accounts = append(s.accounts, store.Account{RecordID: "rec-" + u, Username: u, Status: store.StatusActive})
	}
	return s
}

func (s *fakeStore) ListActiveAccounts(ctx context.Context, maxRecords int) ([]store.Account, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	accounts := append([]store.Account(nil), s.accounts...)
	if maxRecords > 0 && len(accounts) > maxRecords {
		accounts = accounts[:maxRecords]
	}
	return accounts, nil
}

func (s *fakeStore) FindAccount(ctx context.Context, username string) (store.Account, bool, error) {
	for _, a := range s.accounts {
		if a.Username == username {
			return a, true, nil
		}
	}
	return store.Account{}, false, nil
}

func (s *fakeStore) WriteResult(ctx context.Context, account store.Account, fields map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr[account.RecordID]; err != nil {
		return err
	}
	s.results[account.RecordID] = fields
	delete(s.apiErrors, account.RecordID)
	return nil
}

func (s *fakeStore) RecordError(ctx context.Context, account store.Account, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiErrors[account.RecordID] = message
	return nil
}

func (s *fakeStore) UpsertContent(ctx context.Context, account store.Account, post instagram.Post) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.content[post.ID]
	s.content[post.ID] = post
	return !exists, nil
}

func (s *fakeStore) History(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyErrs > 0 {
		s.historyErrs--
		return &errs.StoreError{Table: "Content", Status: 503, Err: errors.New("unavailable")}
	}
	s.history++
	return nil
}

func (s *fakeStore) written(recordID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.results[recordID]
	return ok
}

type recordingJournal struct {
	mu       sync.Mutex
	outcomes []AccountOutcome
	cycles   []*CycleReport
}

func (j *recordingJournal) RecordAccount(ctx context.Context, cycleID string, outcome AccountOutcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outcomes = append(j.outcomes, outcome)
	return nil
}

func (j *recordingJournal) RecordCycle(ctx context.Context, report *CycleReport) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cycles = append(j.cycles, report.Copy())
	return nil
}

func serverError(account string) error {
	return &errs.FetchError{
		AccountID: account,
		Status:    http.StatusInternalServerError,
		Attempts:  3,
		Err:       &errs.Error{Type: errs.ErrorTypeServerError, Message: "server error", Code: 500},
	}
}

func authError(account string) error {
	return &errs.FetchError{
		AccountID: account,
		Status:    http.StatusUnauthorized,
		Attempts:  1,
		Err:       &errs.Error{Type: errs.ErrorTypeAuth, Message: "API key rejected", Code: 401},
	}
}
