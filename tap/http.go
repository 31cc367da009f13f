package tap

import (
	"fmt"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"
)

// HTTPRequestTimeout is the default timeout for all HTTP requests to external APIs.
const HTTPRequestTimeout = 60 * time.Second

// APIBuilder returns a new requests.Builder for baseURL.
// When request recording is enabled every exchange is written under RecordDir.
func (s *SyncContext) APIBuilder(baseURL string) *requests.Builder {
	result := requests.
		URL(baseURL).
		Client(&http.Client{Timeout: HTTPRequestTimeout})
	if s.RecordRequests {
		dir := s.RecordDir
		if dir == "" {
			dir = fmt.Sprintf("testdata/.requests/%s", s.Config.MerchantID)
		}
		result = result.Transport(requests.Record(nil, dir))
	}
	if s.Config.UserAgent != "" {
		result = result.Header("User-Agent", s.Config.UserAgent)
	}
	return result
}
