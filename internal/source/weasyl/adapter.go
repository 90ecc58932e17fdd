package weasyl

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
	DefaultBaseURL = "https://www.weasyl.com"
	apiKeyHeader   = "X-Weasyl-API-Key"

	suggestedBatch = 20
	minBatch       = 1
	maxBatch       = 100
)

// Media is one rendition of a submission file.
type Media struct {
	URL string `json:"url"`
}

// Submission is a gallery entry as returned by the Weasyl API.
type Submission struct {
	SubmitID    int                `json:"submitid"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Rating      string             `json:"rating"`
	PostedAt    time.Time          `json:"posted_at"`
	Tags        []string           `json:"tags"`
	Link        string             `json:"link"`
	Owner       string             `json:"owner_login"`
	Media       map[string][]Media `json:"media"`
}

type galleryResponse struct {
	Submissions []Submission `json:"submissions"`
	NextID      *int         `json:"nextid"`
	BackID      *int         `json:"backid"`
}

type whoamiResponse struct {
	Login  string `json:"login"`
	UserID int    `json:"userid"`
}

// Config holds configuration for the Weasyl adapter.
type Config struct {
	BaseURL       string
	APIKey        string
	Username      string // gallery owner; empty means the API key's account
	RatePerSecond float64
}

// Adapter pages a Weasyl user gallery. The cursor is the API's nextid.
type Adapter struct {
	client   *client.Client
	username string
}

// NewAdapter creates a Weasyl gallery adapter.
func NewAdapter(cfg *Config) *Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{
		client: client.New(&client.Config{
			BaseURL:       baseURL,
			APIKey:        cfg.APIKey,
			APIKeyHeader:  apiKeyHeader,
			RatePerSecond: cfg.RatePerSecond,
		}),
		username: cfg.Username,
	}
}

// Name returns the display name of the adapter.
func (a *Adapter) Name() string {
	if a.username != "" {
		return fmt.Sprintf("Weasyl (%s)", a.username)
	}
	return "Weasyl"
}

// ResultsFiltered is true: Weasyl hides submissions above the viewer's rating.
func (a *Adapter) ResultsFiltered() bool { return true }

func (a *Adapter) SuggestedBatchSize() int { return suggestedBatch }
func (a *Adapter) MinBatchSize() int       { return minBatch }
func (a *Adapter) MaxBatchSize() int       { return maxBatch }

// WhoAmI returns the login of the API key's account.
func (a *Adapter) WhoAmI(ctx context.Context) (string, error) {
	var who whoamiResponse
	if err := a.client.GetJSON(ctx, "/api/whoami", nil, &who); err != nil {
		return "", err
	}
	return who.Login, nil
}

// Start fetches the newest submissions.
func (a *Adapter) Start(ctx context.Context, count int) (source.FetchResult[int, Submission], error) {
	return a.gallery(ctx, nil, count)
}

// More fetches submissions older than cursor.
func (a *Adapter) More(ctx context.Context, cursor int, count int) (source.FetchResult[int, Submission], error) {
	return a.gallery(ctx, &cursor, count)
}

func (a *Adapter) gallery(ctx context.Context, nextID *int, count int) (source.FetchResult[int, Submission], error) {
	var result source.FetchResult[int, Submission]

	user := a.username
	if user == "" {
		who, err := a.WhoAmI(ctx)
		if err != nil {
			return result, fmt.Errorf("resolve gallery owner: %w", err)
		}
		user = who
	}

	query := map[string]string{"count": strconv.Itoa(count)}
	if nextID != nil {
		query["nextid"] = strconv.Itoa(*nextID)
	}

	var resp galleryResponse
	if err := a.client.GetJSON(ctx, "/api/users/"+url.PathEscape(user)+"/gallery", query, &resp); err != nil {
		return result, err
	}

	result.Items = resp.Submissions
	if resp.NextID != nil {
		result.Next = *resp.NextID
		result.HasMore = true
	}
	return result, nil
}

// Normalize converts a submission into a ContentItem.
// Ratings map to independent flags: moderate and mature set Mature,
// explicit sets Adult.
func Normalize(s Submission) (domain.ContentItem, error) {
	item := domain.ContentItem{
		Title:           s.Title,
		DescriptionHTML: s.Description,
		Mature:          s.Rating == "moderate" || s.Rating == "mature",
		Adult:           s.Rating == "explicit",
		Tags:            append([]string(nil), s.Tags...),
		Timestamp:       s.PostedAt,
		ViewURL:         s.Link,
		MediaURL:        firstURL(s.Media["submission"]),
		ThumbnailURL:    firstURL(s.Media["thumbnail"]),
	}
	if item.ViewURL == "" && s.SubmitID != 0 {
		item.ViewURL = fmt.Sprintf("%s/submission/%d", DefaultBaseURL, s.SubmitID)
	}
	if err := item.Validate(); err != nil {
		return domain.ContentItem{}, fmt.Errorf("weasyl submission %d: %w", s.SubmitID, err)
	}
	return item, nil
}

func firstURL(media []Media) string {
	for _, m := range media {
		if m.URL != "" {
			return m.URL
		}
	}
	return ""
}
