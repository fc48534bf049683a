package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/yungbote/plansync-backend/internal/pkg/httpx"
	"github.com/yungbote/plansync-backend/internal/platform/logger"
)

const joinField = "join_field"

type ElasticConfig struct {
	Addresses []string `yaml:"addresses"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	Index     string   `yaml:"index"`
}

// ElasticBackend stores the tree in one index with a join field. Writes wait
// for a refresh so a delete that follows sees the children just written.
type ElasticBackend struct {
	es       *elasticsearch.Client
	index    string
	pageSize int
	log      *logger.Logger
}

var _ Backend = (*ElasticBackend)(nil)

func NewElasticBackend(log *logger.Logger, cfg ElasticConfig) (*ElasticBackend, error) {
	if cfg.Index == "" {
		cfg.Index = "plans"
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return &ElasticBackend{es: es, index: cfg.Index, pageSize: childPageSize, log: log.With("repo", "ElasticIndexBackend", "index", cfg.Index)}, nil
}

func (b *ElasticBackend) Name() string { return "elasticsearch" }

// statusError carries the HTTP status of a failed call so httpx can classify it.
type statusError struct {
	op     string
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("elasticsearch %s: status %d: %s", e.op, e.status, e.body)
}

func (e *statusError) HTTPStatusCode() int { return e.status }

// check turns transport and HTTP failures into index errors, closing the
// body of failed responses. okStatus lists extra statuses that are not
// failures.
func (b *ElasticBackend) check(op string, res *esapi.Response, err error, okStatus ...int) (*esapi.Response, error) {
	if err != nil {
		return nil, fmt.Errorf("%w: elasticsearch %s: %v", ErrUnavailable, op, err)
	}
	for _, s := range okStatus {
		if res.StatusCode == s {
			return res, nil
		}
	}
	if !res.IsError() {
		return res, nil
	}
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	res.Body.Close()
	serr := &statusError{op: op, status: res.StatusCode, body: string(raw)}
	if httpx.IsRetryableError(serr) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, serr)
	}
	return nil, fmt.Errorf("%w: %v", ErrRejected, serr)
}

func (b *ElasticBackend) mapping() map[string]any {
	relations := map[string]any{}
	for parent, children := range Relations {
		names := make([]string, len(children))
		for i, c := range children {
			names[i] = string(c)
		}
		relations[string(parent)] = names
	}
	return map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"_org":         map[string]any{"type": "text"},
				"objectId":     map[string]any{"type": "keyword"},
				"objectType":   map[string]any{"type": "text"},
				"planType":     map[string]any{"type": "text"},
				"creationDate": map[string]any{"type": "keyword"},
				"name":         map[string]any{"type": "text"},
				"copay":        map[string]any{"type": "double"},
				"deductible":   map[string]any{"type": "double"},
				joinField: map[string]any{
					"type":      "join",
					"relations": relations,
				},
			},
		},
	}
}

func (b *ElasticBackend) EnsureSchema(ctx context.Context) error {
	res, err := b.es.Indices.Exists([]string{b.index}, b.es.Indices.Exists.WithContext(ctx))
	res, err = b.check("exists", res, err, http.StatusNotFound)
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		b.log.Debug("index already exists")
		return nil
	}

	body, _ := json.Marshal(b.mapping())
	res, err = b.es.Indices.Create(b.index,
		b.es.Indices.Create.WithContext(ctx),
		b.es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	res, err = b.check("create index", res, err)
	if err != nil {
		return err
	}
	res.Body.Close()
	b.log.Info("index created")
	return nil
}

func (b *ElasticBackend) Put(ctx context.Context, doc Document) error {
	src := make(map[string]any, len(doc.Body)+1)
	for k, v := range doc.Body {
		src[k] = v
	}
	if doc.Parent == "" {
		src[joinField] = string(doc.Relation)
	} else {
		src[joinField] = map[string]any{"name": string(doc.Relation), "parent": doc.Parent}
	}
	body, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrRejected, doc.ID, err)
	}
	res, err := b.es.Index(b.index, bytes.NewReader(body),
		b.es.Index.WithContext(ctx),
		b.es.Index.WithDocumentID(doc.ID),
		b.es.Index.WithRouting(doc.Routing),
		b.es.Index.WithRefresh("wait_for"),
	)
	res, err = b.check("index", res, err)
	if err != nil {
		return err
	}
	res.Body.Close()
	return nil
}

// childPageSize is the default search page; Children keeps paging until a
// short page comes back.
const childPageSize = 500

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID      string         `json:"_id"`
			Routing string         `json:"_routing"`
			Source  map[string]any `json:"_source"`
			Sort    []any          `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

// childQuery selects the direct children of parent ordered by objectId, which
// equals the document id. after is the sort value of the previous page.
func childQuery(parent Hit, size int, after []any) map[string]any {
	q := map[string]any{
		"size": size,
		"sort": []any{map[string]any{"objectId": "asc"}},
		"query": map[string]any{
			"has_parent": map[string]any{
				"parent_type": string(parent.Relation),
				"query": map[string]any{
					"ids": map[string]any{"values": []string{parent.ID}},
				},
			},
		},
	}
	if len(after) > 0 {
		q["search_after"] = after
	}
	return q
}

func (b *ElasticBackend) Children(ctx context.Context, parent Hit) ([]Hit, error) {
	var (
		out   []Hit
		after []any
	)
	for {
		page, last, err := b.childPage(ctx, parent, after)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < b.pageSize || len(last) == 0 {
			return out, nil
		}
		after = last
	}
}

func (b *ElasticBackend) childPage(ctx context.Context, parent Hit, after []any) ([]Hit, []any, error) {
	body, _ := json.Marshal(childQuery(parent, b.pageSize, after))
	res, err := b.es.Search(
		b.es.Search.WithContext(ctx),
		b.es.Search.WithIndex(b.index),
		b.es.Search.WithBody(bytes.NewReader(body)),
	)
	res, err = b.check("search", res, err, http.StatusNotFound)
	if err != nil {
		return nil, nil, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, nil, nil
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, nil, fmt.Errorf("%w: decode search: %v", ErrUnavailable, err)
	}
	out := make([]Hit, 0, len(sr.Hits.Hits))
	var last []any
	for _, h := range sr.Hits.Hits {
		out = append(out, Hit{ID: h.ID, Relation: relationOf(h.Source), Routing: h.Routing})
		last = h.Sort
	}
	return out, last, nil
}

func relationOf(src map[string]any) Relation {
	switch j := src[joinField].(type) {
	case string:
		return Relation(j)
	case map[string]any:
		name, _ := j["name"].(string)
		return Relation(name)
	}
	return ""
}

func (b *ElasticBackend) Delete(ctx context.Context, hit Hit) error {
	opts := []func(*esapi.DeleteRequest){
		b.es.Delete.WithContext(ctx),
		b.es.Delete.WithRefresh("wait_for"),
	}
	if hit.Routing != "" {
		opts = append(opts, b.es.Delete.WithRouting(hit.Routing))
	}
	res, err := b.es.Delete(b.index, hit.ID, opts...)
	res, err = b.check("delete", res, err, http.StatusNotFound)
	if err != nil {
		return err
	}
	res.Body.Close()
	return nil
}

func (b *ElasticBackend) Close(context.Context) error { return nil }
