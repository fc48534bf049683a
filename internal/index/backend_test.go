package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/plansync-backend/internal/db"
	"github.com/yungbote/plansync-backend/internal/platform/logger"
	"github.com/yungbote/plansync-backend/internal/platform/neo4jdb"
)

// backendsUnderTest returns memory and SQLite backends, plus Elasticsearch and
// Neo4j when TEST_ELASTICSEARCH_URL / TEST_NEO4J_URI are set.
func backendsUnderTest(t *testing.T) map[string]Backend {
	t.Helper()
	ctx := context.Background()
	log := logger.Nop()
	out := map[string]Backend{"memory": NewMemoryBackend()}

	gdb, err := db.OpenSQLite(log, filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })
	out["sqlite"] = NewGormBackend(log, gdb, "")

	if url := os.Getenv("TEST_ELASTICSEARCH_URL"); url != "" {
		name := "plansync-test-" + strings.ToLower(uuid.NewString())
		eb, err := NewElasticBackend(log, ElasticConfig{Addresses: []string{url}, Index: name})
		require.NoError(t, err)
		t.Cleanup(func() {
			res, err := eb.es.Indices.Delete([]string{name})
			if err == nil {
				res.Body.Close()
			}
		})
		out["elasticsearch"] = eb
	}

	if uri := os.Getenv("TEST_NEO4J_URI"); uri != "" {
		client, err := neo4jdb.New(ctx, log, neo4jdb.Config{
			URI:      uri,
			User:     os.Getenv("TEST_NEO4J_USER"),
			Password: os.Getenv("TEST_NEO4J_PASSWORD"),
		})
		require.NoError(t, err)
		name := "plansync-test-" + uuid.NewString()
		nb := NewNeo4jBackend(log, client, name)
		t.Cleanup(func() {
			_ = nb.write(ctx, `MATCH (d:IndexDocument {index: $index}) DETACH DELETE d`, map[string]any{"index": name})
			_ = client.Close(ctx)
		})
		out["neo4j"] = nb
	}
	return out
}

func TestBackendsIndexAndCascade(t *testing.T) {
	for name, b := range backendsUnderTest(t) {
		b := b
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, b.EnsureSchema(ctx))
			require.NoError(t, b.EnsureSchema(ctx), "schema bootstrap must be repeatable")

			s := newSync(b)
			require.NoError(t, s.Index(ctx, parsePlan(t, testPlan)))

			root := Hit{ID: testPlanID, Relation: RelPlan, Routing: testPlanID}
			children, err := b.Children(ctx, root)
			require.NoError(t, err)
			ids := make([]string, 0, len(children))
			for _, c := range children {
				ids = append(ids, c.ID)
			}
			assert.ElementsMatch(t, []string{"1234vxc2324sdf-501", "27283xvx9asdff-504", "27283xvx9sdf-507"}, ids)

			grand, err := b.Children(ctx, Hit{ID: "27283xvx9asdff-504", Relation: RelLinkedPlanServices, Routing: testPlanID})
			require.NoError(t, err)
			assert.Len(t, grand, 2)
			for _, g := range grand {
				assert.Equal(t, "27283xvx9asdff-504", g.Routing)
			}

			require.NoError(t, s.Delete(ctx, testPlanID))
			children, err = b.Children(ctx, root)
			require.NoError(t, err)
			assert.Empty(t, children)
			grand, err = b.Children(ctx, Hit{ID: "27283xvx9asdff-504", Relation: RelLinkedPlanServices})
			require.NoError(t, err)
			assert.Empty(t, grand)
		})
	}
}

func TestBackendsListChildrenAcrossPages(t *testing.T) {
	for name, b := range backendsUnderTest(t) {
		b := b
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if eb, ok := b.(*ElasticBackend); ok {
				eb.pageSize = 2
			}
			require.NoError(t, b.EnsureSchema(ctx))

			const planID = "paged-plan"
			require.NoError(t, b.Put(ctx, Document{
				ID: planID, Relation: RelPlan, Routing: planID,
				Body: map[string]any{"objectId": planID, "objectType": "plan"},
			}))
			var want []string
			for i := 0; i < 5; i++ {
				id := fmt.Sprintf("paged-lps-%d", i)
				want = append(want, id)
				require.NoError(t, b.Put(ctx, Document{
					ID: id, Relation: RelLinkedPlanServices, Parent: planID, Routing: planID,
					Body: map[string]any{"objectId": id, "objectType": "planservice"},
				}))
			}

			children, err := b.Children(ctx, Hit{ID: planID, Relation: RelPlan, Routing: planID})
			require.NoError(t, err)
			got := make([]string, 0, len(children))
			for _, c := range children {
				got = append(got, c.ID)
			}
			assert.ElementsMatch(t, want, got)

			require.NoError(t, newSync(b).Delete(ctx, planID))
			children, err = b.Children(ctx, Hit{ID: planID, Relation: RelPlan, Routing: planID})
			require.NoError(t, err)
			assert.Empty(t, children, "no child may outlive a cascade")
		})
	}
}

func TestChildQueryPagesByObjectID(t *testing.T) {
	parent := Hit{ID: "p1", Relation: RelPlan}

	first := childQuery(parent, 2, nil)
	assert.Equal(t, 2, first["size"])
	assert.Equal(t, []any{map[string]any{"objectId": "asc"}}, first["sort"])
	assert.NotContains(t, first, "search_after")

	next := childQuery(parent, 2, []any{"lps-1"})
	assert.Equal(t, []any{"lps-1"}, next["search_after"])
	hp := next["query"].(map[string]any)["has_parent"].(map[string]any)
	assert.Equal(t, "plan", hp["parent_type"])
}

func TestGormBackendStoresBodies(t *testing.T) {
	ctx := context.Background()
	gdb, err := db.OpenSQLite(logger.Nop(), filepath.Join(t.TempDir(), "bodies.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })

	b := NewGormBackend(logger.Nop(), gdb, "docs")
	require.NoError(t, b.EnsureSchema(ctx))
	require.NoError(t, newSync(b).Index(ctx, parsePlan(t, testPlan)))

	doc, ok, err := b.Get(ctx, "1234520xvc30sfs-505")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, RelLinkedService, doc.Relation)
	assert.Equal(t, "27283xvx9sdf-507", doc.Parent)
	assert.Equal(t, "well baby", doc.Body["name"])

	_, ok, err = b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
