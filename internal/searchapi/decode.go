package searchapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Result entries are decoded field by field so a missing key becomes the zero
// value and loosely typed values ("12", 12.0, {"name": "x"}) are coerced. Only
// values that cannot be coerced at all produce an error.

type object map[string]json.RawMessage

func (o object) str(key string) (string, error) {
	raw, ok := o[key]
	if !ok || isNull(raw) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("field %s: %w", key, err)
		}
		return s, nil
	case '{':
		var nested object
		if err := json.Unmarshal(raw, &nested); err != nil {
			return "", fmt.Errorf("field %s: %w", key, err)
		}
		for _, k := range []string{"name", "title", "text"} {
			if s, err := nested.str(k); err == nil && s != "" {
				return s, nil
			}
		}
		return "", nil
	case 't', 'f':
		return string(raw), nil
	case '[':
		return "", fmt.Errorf("field %s: cannot coerce array to string", key)
	default:
		return string(raw), nil
	}
}

func (o object) float(key string) (float64, error) {
	raw, ok := o[key]
	if !ok || isNull(raw) {
		return 0, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("field %s: %w", key, err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		if err != nil {
			// Free-text numbers ("about 5") degrade to zero.
			return 0, nil
		}
		return f, nil
	case '{', '[', 't', 'f':
		return 0, fmt.Errorf("field %s: cannot coerce %s to number", key, kindOf(raw))
	default:
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", key, err)
		}
		return f, nil
	}
}

func (o object) int(key string) (int, error) {
	f, err := o.float(key)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, nil
	}
	return int(f), nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func kindOf(raw json.RawMessage) string {
	switch raw[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	default:
		return "boolean"
	}
}

// fieldReader accumulates the first coercion error across several reads.
type fieldReader struct {
	obj object
	err error
}

func (r *fieldReader) str(key string) string {
	v, err := r.obj.str(key)
	if err != nil && r.err == nil {
		r.err = err
	}
	return v
}

func (r *fieldReader) float(key string) float64 {
	v, err := r.obj.float(key)
	if err != nil && r.err == nil {
		r.err = err
	}
	return v
}

func (r *fieldReader) int(key string) int {
	v, err := r.obj.int(key)
	if err != nil && r.err == nil {
		r.err = err
	}
	return v
}

func readObject(data []byte) (*fieldReader, error) {
	var obj object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return &fieldReader{obj: obj}, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *OrganicResult) UnmarshalJSON(data []byte) error {
	f, err := readObject(data)
	if err != nil {
		return fmt.Errorf("organic result: %w", err)
	}
	*r = OrganicResult{
		Position:      f.int("position"),
		Title:         f.str("title"),
		Link:          f.str("link"),
		Snippet:       f.str("snippet"),
		DisplayedLink: f.str("displayed_link"),
	}
	return f.err
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ShoppingResult) UnmarshalJSON(data []byte) error {
	f, err := readObject(data)
	if err != nil {
		return fmt.Errorf("shopping result: %w", err)
	}
	link := f.str("link")
	if link == "" {
		link = f.str("product_link")
	}
	*r = ShoppingResult{
		Position:       f.int("position"),
		Title:          f.str("title"),
		Price:          f.str("price"),
		ExtractedPrice: f.float("extracted_price"),
		Source:         f.str("source"),
		Link:           link,
		Thumbnail:      f.str("thumbnail"),
	}
	return f.err
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ImageResult) UnmarshalJSON(data []byte) error {
	f, err := readObject(data)
	if err != nil {
		return fmt.Errorf("image result: %w", err)
	}
	*r = ImageResult{
		Position:       f.int("position"),
		Title:          f.str("title"),
		Original:       f.str("original"),
		Thumbnail:      f.str("thumbnail"),
		Source:         f.str("source"),
		Link:           f.str("link"),
		OriginalWidth:  f.int("original_width"),
		OriginalHeight: f.int("original_height"),
	}
	return f.err
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *NewsResult) UnmarshalJSON(data []byte) error {
	f, err := readObject(data)
	if err != nil {
		return fmt.Errorf("news result: %w", err)
	}
	*r = NewsResult{
		Position:  f.int("position"),
		Title:     f.str("title"),
		Link:      f.str("link"),
		Source:    f.str("source"),
		Date:      f.str("date"),
		Snippet:   f.str("snippet"),
		Thumbnail: f.str("thumbnail"),
	}
	return f.err
}

type rawResponse struct {
	Organic  []json.RawMessage `json:"organic_results"`
	Shopping []json.RawMessage `json:"shopping_results"`
	Images   []json.RawMessage `json:"images_results"`
	News     []json.RawMessage `json:"news_results"`
}

// Decode parses a search payload. Entries that cannot be decoded are left out
// and reported in Response.Skipped; only a malformed document is an error.
func Decode(data []byte) (*Response, error) {
	var raw rawResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	resp := &Response{}
	resp.Organic = decodeEntries[OrganicResult]("organic_results", raw.Organic, &resp.Skipped)
	resp.Shopping = decodeEntries[ShoppingResult]("shopping_results", raw.Shopping, &resp.Skipped)
	resp.Images = decodeEntries[ImageResult]("images_results", raw.Images, &resp.Skipped)
	resp.News = decodeEntries[NewsResult]("news_results", raw.News, &resp.Skipped)
	return resp, nil
}

func decodeEntries[T any](list string, raws []json.RawMessage, skipped *[]error) []T {
	if raws == nil {
		return nil
	}
	out := make([]T, 0, len(raws))
	for i, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			*skipped = append(*skipped, fmt.Errorf("%s[%d]: %w", list, i, err))
			continue
		}
		out = append(out, v)
	}
	return out
}
