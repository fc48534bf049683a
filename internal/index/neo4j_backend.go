package index

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/plansync-backend/internal/platform/logger"
	"github.com/yungbote/plansync-backend/internal/platform/neo4jdb"
)

// Neo4jBackend stores documents as (:IndexDocument) nodes joined by
// [:HAS_CHILD] edges. The index name namespaces nodes so several indexes can
// share a database.
type Neo4jBackend struct {
	client *neo4jdb.Client
	index  string
	log    *logger.Logger
}

var _ Backend = (*Neo4jBackend)(nil)

func NewNeo4jBackend(log *logger.Logger, client *neo4jdb.Client, index string) *Neo4jBackend {
	if index == "" {
		index = "plans"
	}
	return &Neo4jBackend{client: client, index: index, log: log.With("repo", "Neo4jIndexBackend", "index", index)}
}

func (b *Neo4jBackend) Name() string { return "neo4j" }

func (b *Neo4jBackend) EnsureSchema(ctx context.Context) error {
	session := b.client.WriteSession(ctx)
	defer session.Close(ctx)

	stmts := []string{
		`CREATE CONSTRAINT index_document_key IF NOT EXISTS FOR (d:IndexDocument) REQUIRE (d.index, d.id) IS UNIQUE`,
		`CREATE INDEX index_document_relation IF NOT EXISTS FOR (d:IndexDocument) ON (d.relation)`,
	}
	for _, q := range stmts {
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			return fmt.Errorf("%w: neo4j schema: %v", ErrUnavailable, err)
		}
		if _, err := res.Consume(ctx); err != nil {
			return fmt.Errorf("%w: neo4j schema: %v", ErrUnavailable, err)
		}
	}
	b.log.Info("neo4j index schema ready")
	return nil
}

func (b *Neo4jBackend) write(ctx context.Context, query string, params map[string]any) error {
	session := b.client.WriteSession(ctx)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("%w: neo4j: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *Neo4jBackend) Put(ctx context.Context, doc Document) error {
	body, err := json.Marshal(doc.Body)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrRejected, doc.ID, err)
	}
	params := map[string]any{
		"index":     b.index,
		"id":        doc.ID,
		"relation":  string(doc.Relation),
		"routing":   doc.Routing,
		"body":      string(body),
		"parent":    doc.Parent,
		"synced_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if doc.Parent == "" {
		return b.write(ctx, `
MERGE (d:IndexDocument {index: $index, id: $id})
SET d.relation = $relation,
    d.routing = $routing,
    d.body = $body,
    d.synced_at = $synced_at
`, params)
	}
	return b.write(ctx, `
MERGE (d:IndexDocument {index: $index, id: $id})
SET d.relation = $relation,
    d.routing = $routing,
    d.body = $body,
    d.synced_at = $synced_at
WITH d
MERGE (p:IndexDocument {index: $index, id: $parent})
MERGE (p)-[:HAS_CHILD]->(d)
`, params)
}

func (b *Neo4jBackend) Children(ctx context.Context, parent Hit) ([]Hit, error) {
	session := b.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (:IndexDocument {index: $index, id: $id})-[:HAS_CHILD]->(c:IndexDocument)
WHERE c.relation IN $relations
RETURN c.id AS id, c.relation AS relation, coalesce(c.routing, '') AS routing
ORDER BY id
`, map[string]any{
			"index":     b.index,
			"id":        parent.ID,
			"relations": relationNames(Relations[parent.Relation]),
		})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		hits := make([]Hit, 0, len(records))
		for _, rec := range records {
			id, _, err := neo4j.GetRecordValue[string](rec, "id")
			if err != nil {
				return nil, err
			}
			rel, _, _ := neo4j.GetRecordValue[string](rec, "relation")
			routing, _, _ := neo4j.GetRecordValue[string](rec, "routing")
			hits = append(hits, Hit{ID: id, Relation: Relation(rel), Routing: routing})
		}
		return hits, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: neo4j: %v", ErrUnavailable, err)
	}
	return out.([]Hit), nil
}

func (b *Neo4jBackend) Delete(ctx context.Context, hit Hit) error {
	return b.write(ctx, `
MATCH (d:IndexDocument {index: $index, id: $id})
DETACH DELETE d
`, map[string]any{"index": b.index, "id": hit.ID})
}

// Close leaves the driver to its owner.
func (b *Neo4jBackend) Close(context.Context) error { return nil }
