package tmdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"showtrack/internal/domain"
	"showtrack/internal/infra/metrics"
)

// ErrUnavailable возвращается при сетевой ошибке или ответе 5xx/401 от каталога.
var ErrUnavailable = errors.New("каталог недоступен")

// Client обращается к TMDB API v3.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	language   string
	httpClient *http.Client
}

var _ domain.Catalog = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func WithLanguage(language string) Option {
	return func(c *Client) {
		c.language = strings.TrimSpace(language)
	}
}

// New создаёт клиента каталога.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	client := &Client{
		baseURL:    parsed,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type genreDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type tvDTO struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	PosterPath   string     `json:"poster_path"`
	BackdropPath string     `json:"backdrop_path"`
	FirstAirDate string     `json:"first_air_date"`
	Genres       []genreDTO `json:"genres"`
	GenreIDs     []int64    `json:"genre_ids"`
	VoteAverage  float64    `json:"vote_average"`
}

type searchDTO struct {
	Results []tvDTO `json:"results"`
}

type apiError struct {
	StatusMessage string `json:"status_message"`
	StatusCode    int    `json:"status_code"`
}

// GetShow реализует domain.Catalog.
func (c *Client) GetShow(ctx context.Context, id int64) (domain.ShowSummary, error) {
	var dto tvDTO
	if err := c.get(ctx, "show", "/tv/"+strconv.FormatInt(id, 10), nil, &dto); err != nil {
		return domain.ShowSummary{}, err
	}
	return dto.summary(), nil
}

// SearchShows реализует domain.Catalog.
func (c *Client) SearchShows(ctx context.Context, query string) ([]domain.ShowSummary, error) {
	var dto searchDTO
	params := url.Values{"query": {query}}
	if err := c.get(ctx, "search", "/search/tv", params, &dto); err != nil {
		return nil, err
	}
	shows := make([]domain.ShowSummary, 0, len(dto.Results))
	for _, item := range dto.Results {
		shows = append(shows, item.summary())
	}
	return shows, nil
}

func (d tvDTO) summary() domain.ShowSummary {
	show := domain.ShowSummary{
		ID:           d.ID,
		Title:        d.Name,
		PosterPath:   d.PosterPath,
		BackdropPath: d.BackdropPath,
		FirstAirDate: d.FirstAirDate,
		VoteAverage:  d.VoteAverage,
	}
	for _, g := range d.Genres {
		show.Genres = append(show.Genres, domain.Genre{ID: g.ID, Name: g.Name})
	}
	if len(show.Genres) == 0 {
		for _, id := range d.GenreIDs {
			show.Genres = append(show.Genres, domain.Genre{ID: id, Name: genreNames[id]})
		}
	}
	return show
}

func (c *Client) get(ctx context.Context, operation, endpoint string, params url.Values, out any) error {
	resolved := *c.baseURL
	resolved.Path = path.Clean(strings.TrimSuffix(c.baseURL.Path, "/") + endpoint)
	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	if c.apiKey != "" {
		query.Set("api_key", c.apiKey)
	}
	if c.language != "" {
		query.Set("language", c.language)
	}
	resolved.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	err = c.do(req, out)
	metrics.ObserveNetworkRequest("tmdb", operation, resolved.Host, start, err)
	return err
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr apiError
		data, readErr := io.ReadAll(resp.Body)
		if readErr == nil && len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.StatusMessage == "" {
			apiErr.StatusMessage = strings.TrimSpace(string(data))
		}
		return mapAPIError(resp.StatusCode, apiErr)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrUnavailable, err)
	}
	return nil
}

func mapAPIError(status int, err apiError) error {
	switch {
	case status == http.StatusNotFound:
		return domain.ErrNotFound
	case status == http.StatusUnauthorized, status == http.StatusTooManyRequests, status >= 500:
		return fmt.Errorf("%w: status=%d message=%s", ErrUnavailable, status, err.StatusMessage)
	default:
		return fmt.Errorf("tmdb error: status=%d code=%d message=%s", status, err.StatusCode, err.StatusMessage)
	}
}
