package finder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/searchapi"
)

func TestParsePrice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw      string
		value    float64
		currency string
		ok       bool
	}{
		{"$45.99", 45.99, "USD", true},
		{"45.99 USD", 45.99, "USD", true},
		{"Price unavailable", 0, "", false},
		{"£1,299.00", 1299, "GBP", true},
		{"1.299,00 €", 1299, "EUR", true},
		{"€ 39,90", 39.90, "EUR", true},
		{"¥12,000", 12000, "JPY", true},
		{"₹2,450", 2450, "INR", true},
		{"3,499", 3499, "USD", true},
		{"29.99 gbp", 29.99, "GBP", true},
		{"US$ 60", 60, "USD", true},
		{"1.234.567", 1234567, "USD", true},
		{"", 0, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			value, currency, ok := ParsePrice(tc.raw)
			require.Equal(t, tc.ok, ok)
			if !tc.ok {
				return
			}
			require.InDelta(t, tc.value, value, 1e-9)
			require.Equal(t, tc.currency, currency)
		})
	}
}

func TestBestPrice(t *testing.T) {
	t.Parallel()

	tied := []discovery.PriceEntry{
		{Price: 45.99, Retailer: "Total Wine"},
		{Price: 45.99, Retailer: "Other"},
	}
	best, ok := BestPrice(tied)
	require.True(t, ok)
	require.Equal(t, "Total Wine", best.Retailer)

	lower := []discovery.PriceEntry{
		{Price: 45.99, Retailer: "Total Wine"},
		{Price: 0, Retailer: "Free?"},
		{Price: 44.50, Retailer: "Cheaper"},
	}
	best, ok = BestPrice(lower)
	require.True(t, ok)
	require.Equal(t, "Cheaper", best.Retailer)

	_, ok = BestPrice([]discovery.PriceEntry{{Price: 0}, {Price: -3}})
	require.False(t, ok)
	_, ok = BestPrice(nil)
	require.False(t, ok)
}

func TestIsRelevant(t *testing.T) {
	t.Parallel()

	name := "Lagavulin 16 Year Old Islay Single Malt"
	// significant words: lagavulin, islay, single, malt
	require.True(t, IsRelevant(name, "Lagavulin 16 Islay 70cl"))
	require.True(t, IsRelevant(name, "LAGAVULIN single malt"))
	require.False(t, IsRelevant(name, "Lagavulin gift set"))
	require.False(t, IsRelevant(name, "Talisker 10"))
	require.True(t, IsRelevant("XO", "anything"))
}

func TestPriceFinderParsesAndFilters(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{resp: &searchapi.Response{Shopping: []searchapi.ShoppingResult{
		{Title: "Lagavulin 16 Year Old", Price: "$45.99", Source: "Total Wine", Link: "https://totalwine.example/l16"},
		{Title: "Lagavulin 16yo Islay", Price: "45.99 USD", Source: "Drizly", Link: "https://drizly.example/l16"},
		{Title: "Lagavulin 16", Price: "Price unavailable", Source: "Nowhere"},
		{Title: "Laphroaig 10", Price: "$39.99", Source: "Total Wine"},
		{Title: "Lagavulin 16", Price: "See site", ExtractedPrice: 52, Source: "Text without digits"},
		{Title: "Lagavulin 16", ExtractedPrice: 52, Source: "Fallback"},
	}}}
	res := NewPriceFinder(s, fakeClock{now: testNow}, nil).Find(context.Background(), testProduct(), 10)
	require.True(t, res.OK())
	require.Len(t, res.Entries, 3)
	require.Equal(t, "Total Wine", res.Entries[0].Retailer)
	require.InDelta(t, 45.99, res.Entries[1].Price, 1e-9)
	require.Equal(t, "USD", res.Entries[1].Currency)
	require.Equal(t, "Fallback", res.Entries[2].Retailer)
	require.Equal(t, testNow, res.Entries[0].FoundAt)

	best, ok := BestPrice(res.Entries)
	require.True(t, ok)
	require.Equal(t, "Total Wine", best.Retailer)

	limited := NewPriceFinder(s, fakeClock{now: testNow}, nil).Find(context.Background(), testProduct(), 1)
	require.Len(t, limited.Entries, 1)
}
