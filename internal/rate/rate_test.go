package rate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func priceServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetcher(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "numeric", status: 200, body: `{"sui":{"usd":1.2345}}`, path: "$.sui.usd", want: "1.2345"},
		{name: "string", status: 200, body: `{"data":{"price":"0.98"}}`, path: "$.data.price", want: "0.98"},
		{name: "missing", status: 200, body: `{"sui":{}}`, path: "$.sui.usd", wantErr: true},
		{name: "zero", status: 200, body: `{"sui":{"usd":0}}`, path: "$.sui.usd", wantErr: true},
		{name: "http error", status: 502, body: `bad gateway`, path: "$.sui.usd", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := priceServer(t, tt.status, tt.body)
			got, err := NewFetcher(srv.URL, tt.path).Fetch(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), got.String())
		})
	}
}

type memWriter struct {
	stored []decimal.Decimal
}

func (m *memWriter) Store(_ context.Context, d decimal.Decimal) error {
	m.stored = append(m.stored, d)
	return nil
}

type sourceFunc func(ctx context.Context) (decimal.Decimal, error)

func (f sourceFunc) Fetch(ctx context.Context) (decimal.Decimal, error) { return f(ctx) }

func TestRefresher(t *testing.T) {
	w := &memWriter{}
	r := NewRefresher(sourceFunc(func(context.Context) (decimal.Decimal, error) {
		return decimal.RequireFromString("1.5"), nil
	}), w, logrus.NewEntry(logrus.New()))

	d, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.5", d.String())
	require.Len(t, w.stored, 1)

	failing := NewRefresher(sourceFunc(func(context.Context) (decimal.Decimal, error) {
		return decimal.Zero, errors.New("upstream down")
	}), w, logrus.NewEntry(logrus.New()))
	_, err = failing.Refresh(context.Background())
	assert.Error(t, err)
	assert.Len(t, w.stored, 1)
}
