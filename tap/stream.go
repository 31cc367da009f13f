package tap

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/carlmjohnson/requests"
	"go.uber.org/zap"
)

// ContextField declares one binding of the context handed to child streams.
type ContextField struct {
	Key string
	// RecordField is the parent record field the value is read from.
	// When empty the value is inherited from the parent's own context under Key.
	RecordField string
}

// StreamDefinition is the static description of one Clover endpoint.
type StreamDefinition struct {
	Name           string
	Path           string
	PrimaryKeys    []string
	ReplicationKey string
	ExpandableKeys []string
	Parent         string
	ChildContext   []ContextField
	// RecordsPath is a gjson path to the records when a response has no elements key.
	RecordsPath string
}

type StreamOptions struct {
	BaseURL       string
	Authenticator Authenticator
	// NewRequest builds a request for a base URL, e.g. SyncContext.APIBuilder.
	NewRequest      func(baseURL string) *requests.Builder
	RetryPolicy     *RetryPolicy
	PageSize        int
	FieldTransforms map[string]string
	Separator       string
}

// Stream syncs one StreamDefinition. Everything it needs is resolved in NewStream.
type Stream struct {
	Definition StreamDefinition

	baseURL    string
	auth       Authenticator
	newRequest func(baseURL string) *requests.Builder
	policy     RetryPolicy
	pageSize   int
	transforms map[string]string
	separator  string
}

func NewStream(def StreamDefinition, opts StreamOptions) (*Stream, error) {
	if def.Name == "" || def.Path == "" {
		return nil, fmt.Errorf("stream definition needs a name and a path: %+v", def)
	}
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("stream %s has no base url", def.Name)
	}
	if opts.Authenticator == nil {
		return nil, fmt.Errorf("stream %s has no authenticator", def.Name)
	}
	result := &Stream{
		Definition: def,
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		auth:       opts.Authenticator,
		newRequest: opts.NewRequest,
		policy:     FetchRetryPolicy(),
		pageSize:   opts.PageSize,
		transforms: opts.FieldTransforms,
		separator:  opts.Separator,
	}
	if result.newRequest == nil {
		result.newRequest = (&SyncContext{}).APIBuilder
	}
	if opts.RetryPolicy != nil {
		result.policy = *opts.RetryPolicy
	}
	if result.pageSize <= 0 {
		result.pageSize = DefaultPageSize
	}
	if result.separator == "" {
		result.separator = DefaultFlattenSeparator
	}
	return result, nil
}

func (s *Stream) Name() string {
	return s.Definition.Name
}

// URLParams builds the query of the page at offset.
// startingValue is the bookmark of the replication key, nil when there is none.
func (s *Stream) URLParams(offset int, startingValue any) (url.Values, error) {
	params := url.Values{}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	params.Set("limit", strconv.Itoa(s.pageSize))
	if len(s.Definition.ExpandableKeys) > 0 {
		params.Set("expand", strings.Join(s.Definition.ExpandableKeys, ","))
	}
	key := s.Definition.ReplicationKey
	if key != "" && startingValue != nil && startingValue != "" {
		ts, err := NormalizeTimestamp(startingValue)
		if err != nil {
			return nil, fmt.Errorf("invalid bookmark for %s %w", s.Name(), err)
		}
		params.Set("filter", fmt.Sprintf("%s>=[%d]]", key, ts))
		params.Set("orderBy", key+" DESC")
	}
	return params, nil
}

// Sync pages through the stream for one context, handing every processed record to emit.
// Records of a page are only emitted once the whole page has been parsed.
func (s *Stream) Sync(ctx context.Context, sctx Context, startingValue any, emit func(Record) error) error {
	path, err := sctx.ResolvePath(s.Definition.Path)
	if err != nil {
		return err
	}
	paginator := NewOffsetPaginator(0, s.pageSize)
	for {
		if err = ctx.Err(); err != nil {
			return err
		}
		params, err := s.URLParams(paginator.Current(), startingValue)
		if err != nil {
			return err
		}
		Logger().Debug("fetching page",
			zap.String("stream", s.Name()),
			zap.Stringer("context", sctx),
			zap.Int("offset", paginator.Current()))

		body, err := s.fetchPage(ctx, path, params)
		if err != nil {
			return err
		}
		if body == nil {
			return nil
		}

		var records []Record
		for _, raw := range s.parseRecords(body) {
			record, err := s.processRecord(raw, sctx)
			if err != nil {
				Logger().Error("skipping record",
					zap.String("stream", s.Name()),
					zap.Stringer("context", sctx),
					zap.Error(err))
				continue
			}
			records = append(records, record)
		}
		for _, record := range records {
			if err = emit(record); err != nil {
				return err
			}
		}

		if !paginator.Advance(body) {
			return nil
		}
	}
}

func (s *Stream) processRecord(raw string, sctx Context) (Record, error) {
	raw, err := ApplyFieldTransforms(raw, s.transforms)
	if err != nil {
		return nil, err
	}
	record, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}
	result := Record(Flatten(record, s.separator))
	MergeContext(result, sctx)
	return result, nil
}

// ChildContext builds the context handed to child streams for one emitted record.
func (s *Stream) ChildContext(record Record, parent Context) (Context, error) {
	var result Context
	for _, f := range s.Definition.ChildContext {
		if f.RecordField == "" {
			v, ok := parent.Get(f.Key)
			if !ok {
				return nil, fmt.Errorf("%w %q in context of %s", ErrMissingContextKey, f.Key, s.Name())
			}
			result = result.With(f.Key, v)
			continue
		}
		v, ok := record[f.RecordField]
		if !ok || v == nil || fmt.Sprint(v) == "" {
			return nil, fmt.Errorf("%w %q in record of %s", ErrMissingContextKey, f.RecordField, s.Name())
		}
		result = result.With(f.Key, fmt.Sprint(v))
	}
	if len(result) == 0 {
		return nil, errors.New("stream " + s.Name() + " declares no child context")
	}
	return result, nil
}
