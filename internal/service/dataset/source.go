package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"zonewatch/internal/logger"
	"zonewatch/internal/metrics"
	"zonewatch/internal/model"
)

// Page is one page of the remote dataset
type Page struct {
	Data []model.ZoneRecord `json:"data"`
	Meta PageMeta           `json:"meta"`
}

// PageMeta carries the provider's advisory total
type PageMeta struct {
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// pageWire mirrors Page with every required field nullable, so an absent
// data array or meta object is told apart from an empty one
type pageWire struct {
	Data *[]model.ZoneRecord `json:"data"`
	Meta *struct {
		Total    *int `json:"total"`
		Page     int  `json:"page"`
		PageSize int  `json:"page_size"`
	} `json:"meta"`
}

// decodePage rejects bodies that are valid JSON but lack data, meta or meta.total
func decodePage(r io.Reader) (*Page, error) {
	var w pageWire
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return nil, err
	}
	switch {
	case w.Data == nil:
		return nil, errors.New("page has no data array")
	case w.Meta == nil:
		return nil, errors.New("page has no meta object")
	case w.Meta.Total == nil:
		return nil, errors.New("page meta has no total")
	}
	return &Page{
		Data: *w.Data,
		Meta: PageMeta{Total: *w.Meta.Total, Page: w.Meta.Page, PageSize: w.Meta.PageSize},
	}, nil
}

// PageSource serves the zone dataset one page at a time. Pages are 1-based.
type PageSource interface {
	FetchPage(ctx context.Context, page, pageSize int) (*Page, error)
}

// HTTPSource reads pages from a tabular REST endpoint
// (GET <url>?page_size=N&page=P returning {data, meta}).
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) FetchPage(ctx context.Context, page, pageSize int) (*Page, error) {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return nil, &SyncError{Kind: ErrNetwork, Page: page, Err: fmt.Errorf("bad source url: %w", err)}
	}
	q := u.Query()
	q.Set("page_size", strconv.Itoa(pageSize))
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &SyncError{Kind: ErrNetwork, Page: page, Err: err}
	}

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	metrics.SyncPagesTotal.Inc()
	logger.L().Debug("dataset_page_req", "page", page, "page_size", pageSize)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &SyncError{Kind: ErrNetwork, Page: page, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &SyncError{Kind: ErrNetwork, Page: page, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	p, err := decodePage(resp.Body)
	if err != nil {
		return nil, &SyncError{Kind: ErrMalformed, Page: page, Err: err}
	}
	return p, nil
}
