package tap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// fetchPage requests one page under the retry policy.
// A nil body with a nil error means the API answered with a non-retriable
// non-2xx status; the page is treated as empty.
func (s *Stream) fetchPage(ctx context.Context, path string, params url.Values) ([]byte, error) {
	var body []byte
	err := s.policy.Do(ctx, func() error {
		body = nil
		headers, err := s.auth.AuthHeaders(ctx)
		if err != nil {
			return err
		}

		var status int
		var buf bytes.Buffer
		rb := s.newRequest(s.baseURL).
			Path(path).
			AddValidator(func(res *http.Response) error {
				status = res.StatusCode
				if status == http.StatusTooManyRequests || status >= 500 {
					return &RetriableAPIError{StatusCode: status, URL: res.Request.URL.String()}
				}
				return nil
			}).
			ToBytesBuffer(&buf)
		for key, values := range params {
			rb.Param(key, values...)
		}
		for key, value := range headers {
			rb.Header(key, value)
		}
		if err = rb.Fetch(ctx); err != nil {
			return err
		}

		if status < 200 || status >= 300 {
			Logger().Warn("unexpected response status, treating page as empty",
				zap.String("stream", s.Name()),
				zap.String("path", path),
				zap.Int("status", status),
				zap.String("body", truncate(buf.String(), 512)))
			return nil
		}
		body = buf.Bytes()
		return nil
	})
	return body, err
}

// parseRecords extracts the raw JSON records of one page.
// The elements collection wins; otherwise RecordsPath is used, or the
// body itself (every element of an array, or a single object).
func (s *Stream) parseRecords(body []byte) []string {
	if !gjson.ValidBytes(body) {
		Logger().Error("failed to decode JSON response",
			zap.String("stream", s.Name()),
			zap.String("body", truncate(string(body), 512)))
		return nil
	}
	root := gjson.ParseBytes(body)
	items := root
	if elements := root.Get(ElementsKey); elements.Exists() {
		items = elements
	} else if s.Definition.RecordsPath != "" {
		items = root.Get(s.Definition.RecordsPath)
	}

	var result []string
	switch {
	case items.IsArray():
		for _, item := range items.Array() {
			if item.IsObject() {
				result = append(result, item.Raw)
			}
		}
	case items.IsObject():
		result = append(result, items.Raw)
	}
	return result
}

// decodeRecord decodes a raw record keeping numbers as json.Number,
// so currency amounts and ids are never rounded through float64.
func decodeRecord(raw string) (Record, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var result Record
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode record %w", err)
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
