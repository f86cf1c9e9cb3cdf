package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/spyzhov/ajson"
)

// Fetcher reads the rate from any JSON price API, picking the value with a JSONPath expression.
type Fetcher struct {
	http *resty.Client
	url  string
	path string
}

func NewFetcher(url, path string) *Fetcher {
	return &Fetcher{
		http: resty.New().SetTimeout(10 * time.Second),
		url:  url,
		path: path,
	}
}

func (f *Fetcher) Fetch(ctx context.Context) (decimal.Decimal, error) {
	resp, err := f.http.R().SetContext(ctx).Get(f.url)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch rate: %w", err)
	}
	if resp.IsError() {
		return decimal.Zero, fmt.Errorf("fetch rate: http status %d", resp.StatusCode())
	}
	nodes, err := ajson.JSONPath(resp.Body(), f.path)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch rate: %w", err)
	}
	if len(nodes) == 0 {
		return decimal.Zero, fmt.Errorf("fetch rate: %s matched nothing", f.path)
	}
	raw := strings.Trim(string(nodes[0].Source()), "\" ")
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch rate: parse %q: %w", raw, err)
	}
	if d.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("fetch rate: non-positive value %s", d)
	}
	return d, nil
}
