package furrynetwork

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/timmy/artsync/internal/domain"
	"github.com/timmy/artsync/internal/source"
	"github.com/timmy/artsync/internal/source/client"
)

const (
	DefaultBaseURL = "https://beta.furrynetwork.com"
	viewURLFormat  = "https://beta.furrynetwork.com/submissions/journal/public/%d"

	// The journal endpoint serves fixed pages of 20.
	pageSize = 20
)

// Journal is a journal entry as returned by the Furry Network API.
type Journal struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Status      string    `json:"status"`
	Created     time.Time `json:"created"`
}

type journalPage struct {
	Results   []Journal `json:"results"`
	Page      int       `json:"page"`
	PageCount int       `json:"page_count"`
}

// Config holds configuration for the journal adapter.
type Config struct {
	BaseURL       string
	AccessToken   string
	Character     string
	Status        string // public, unlisted, private; empty means public
	RatePerSecond float64
}

// Cursor points into the server's fixed pages: Page is 1-based and Offset is
// the first journal on that page not yet returned.
type Cursor struct {
	Page   int
	Offset int
}

// JournalAdapter pages a character's journals.
type JournalAdapter struct {
	client    *client.Client
	character string
	status    string
}

// NewJournalAdapter creates a journal adapter.
func NewJournalAdapter(cfg *Config) *JournalAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	status := cfg.Status
	if status == "" {
		status = "public"
	}
	return &JournalAdapter{
		client: client.New(&client.Config{
			BaseURL:       baseURL,
			APIKey:        cfg.AccessToken,
			APIKeyHeader:  "Authorization",
			RatePerSecond: cfg.RatePerSecond,
		}),
		character: cfg.Character,
		status:    status,
	}
}

// Name returns the display name of the adapter.
func (a *JournalAdapter) Name() string {
	return fmt.Sprintf("Furry Network (%s) (%s)", a.character, a.status)
}

func (a *JournalAdapter) SuggestedBatchSize() int { return pageSize }
func (a *JournalAdapter) MinBatchSize() int       { return 1 }
func (a *JournalAdapter) MaxBatchSize() int       { return pageSize }

// WhoAmI returns the configured character name.
func (a *JournalAdapter) WhoAmI(ctx context.Context) (string, error) {
	return a.character, nil
}

// Start fetches the first page of journals.
func (a *JournalAdapter) Start(ctx context.Context, count int) (source.FetchResult[Cursor, Journal], error) {
	return a.page(ctx, Cursor{Page: 1}, count)
}

// More resumes at cursor.
func (a *JournalAdapter) More(ctx context.Context, cursor Cursor, count int) (source.FetchResult[Cursor, Journal], error) {
	return a.page(ctx, cursor, count)
}

// page fetches one server page and returns at most count journals from
// cursor.Offset on. When the page holds more than that, the next cursor stays
// on the same page so the remainder is served by the following call.
func (a *JournalAdapter) page(ctx context.Context, cursor Cursor, count int) (source.FetchResult[Cursor, Journal], error) {
	var result source.FetchResult[Cursor, Journal]

	query := map[string]string{
		"page":   strconv.Itoa(cursor.Page),
		"status": a.status,
	}
	var resp journalPage
	path := "/api/character/" + url.PathEscape(a.character) + "/journals"
	if err := a.client.GetJSON(ctx, path, query, &resp); err != nil {
		return result, err
	}

	number := resp.Page
	if number == 0 {
		number = cursor.Page
	}

	var items []Journal
	if cursor.Offset < len(resp.Results) {
		items = resp.Results[cursor.Offset:]
	}
	if len(items) > count {
		result.Items = items[:count]
		result.Next = Cursor{Page: number, Offset: cursor.Offset + count}
		result.HasMore = true
		return result, nil
	}

	result.Items = items
	result.Next = Cursor{Page: number + 1}
	result.HasMore = number < resp.PageCount
	return result, nil
}

// Normalize converts a journal into a JournalItem.
func Normalize(j Journal) (domain.JournalItem, error) {
	item := domain.JournalItem{
		Title:           j.Title,
		DescriptionHTML: j.Content,
		Timestamp:       j.Created,
		ViewURL:         fmt.Sprintf(viewURLFormat, j.ID),
	}
	if err := item.Validate(); err != nil {
		return domain.JournalItem{}, fmt.Errorf("furry network journal %d: %w", j.ID, err)
	}
	return item, nil
}
