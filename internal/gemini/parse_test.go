package gemini

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/prodfinder/internal/storage"
)

func TestBuildPrompt_Country(t *testing.T) {
	tests := []struct {
		country   string
		wantFocus bool
	}{
		{"", false},
		{"   ", false},
		{"any country", false},
		{"Any Country", false},
		{"Germany", true},
	}
	for _, tt := range tests {
		t.Run(tt.country, func(t *testing.T) {
			p := buildPrompt("kettle", tt.country)
			assert.Contains(t, p, "'kettle'")
			assert.Contains(t, p, "JSON array")
			assert.Equal(t, tt.wantFocus, strings.Contains(p, "Focus your search"))
		})
	}
}

func TestParseProducts(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    int
		wantErr bool
	}{
		{"bare array", `[{"name":"A","price":"1","country":"US","domain":"a.example"}]`, 1, false},
		{"single object", `{"name":"A","price":"1","country":"US","domain":"a.example"}`, 1, false},
		{"fenced", "```json\n[{\"name\":\"A\",\"price\":\"1\",\"country\":\"US\",\"domain\":\"a.example\"}]\n```", 1, false},
		{"fence without language", "```\n[]\n```", 0, false},
		{"empty array", `[]`, 0, false},
		{"missing domain", `[{"name":"A","price":"1","country":"US"}]`, 0, false},
		{"non-object items", `[1, "two", null]`, 0, false},
		{"prose", `no products here`, 0, true},
		{"scalar", `42`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProducts(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestParseProducts_Website(t *testing.T) {
	got, err := parseProducts(`[
		{"name":"A","price":"1","country":"US","domain":"a.example","website":"https://a.example/p"},
		{"name":"B","price":"1","country":"US","domain":"b.example","website":"www.b.example"},
		{"name":"C","price":"1","country":"US","domain":"c.example","website":7}
	]`)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "https://a.example/p", got[0].Website)
	assert.Empty(t, got[1].Website)
	assert.Empty(t, got[2].Website)
}

func TestApplyWebsiteFallback(t *testing.T) {
	products := []storage.Product{
		{Name: "Super Widget", Domain: "model-guess.example"},
		{Name: "Has Site", Website: "https://keep.example", Domain: "keep.example"},
		{Name: "Unmatched", Domain: "u.example"},
	}
	sources := []storage.Source{
		{URI: "https://other.com/x", Title: "Something else"},
		{URI: "https://www.widgets.co.uk/super", Title: "Buy the SUPER WIDGET today"},
	}

	applyWebsiteFallback(products, sources)

	assert.Equal(t, "https://www.widgets.co.uk/super", products[0].Website)
	assert.Equal(t, "widgets.co.uk", products[0].Domain)
	assert.Equal(t, "https://keep.example", products[1].Website)
	assert.Empty(t, products[2].Website)
	assert.Equal(t, "u.example", products[2].Domain)
}

func TestApplyWebsiteFallback_KeepsDomainWithoutPublicSuffix(t *testing.T) {
	products := []storage.Product{{Name: "Thing", Domain: "thing.com"}}
	sources := []storage.Source{{URI: "http://localhost:8080/thing", Title: "Thing page"}}

	applyWebsiteFallback(products, sources)

	assert.Equal(t, "http://localhost:8080/thing", products[0].Website)
	assert.Equal(t, "thing.com", products[0].Domain)
}

func TestParseResponse_JoinsParts(t *testing.T) {
	body := []byte(`{"candidates":[{"content":{"parts":[{"text":"[{\"name\":"},{"text":"\"A\"}]"}]}}]}`)
	text, sources := parseResponse(body)
	assert.Equal(t, `[{"name":"A"}]`, text)
	assert.NotNil(t, sources)
	assert.Empty(t, sources)
}

func TestAPIError(t *testing.T) {
	err := apiError(403, []byte(`{"error":{"message":"Permission denied"}}`))
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Contains(t, err.Error(), "403")

	err = apiError(502, []byte(`upstream down`))
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Contains(t, err.Error(), "upstream down")
}
