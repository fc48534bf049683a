package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/plansync-backend/internal/data/repos"
	"github.com/yungbote/plansync-backend/internal/domain/plans"
	"github.com/yungbote/plansync-backend/internal/events"
	"github.com/yungbote/plansync-backend/internal/pkg/httpx"
	"github.com/yungbote/plansync-backend/internal/platform/logger"
	"github.com/yungbote/plansync-backend/internal/record"
)

const planP1 = `{
	"planCostShares": {"deductible": 2000, "_org": "example.com", "copay": 23, "objectId": "1234vxc2324sdf-501", "objectType": "membercostshare"},
	"linkedPlanServices": [{
		"linkedService": {"_org": "example.com", "objectId": "1234520xvc30asdf-502", "objectType": "service", "name": "Yearly physical"},
		"planserviceCostShares": {"deductible": 10, "_org": "example.com", "copay": 0, "objectId": "1234512xvc1314asdfs-503", "objectType": "membercostshare"},
		"_org": "example.com", "objectId": "27283xvx9asdff-504", "objectType": "planservice"
	}],
	"_org": "example.com",
	"objectId": "p1",
	"objectType": "plan",
	"planType": "inNetwork",
	"creationDate": "12-12-2017"
}`

type fixture struct {
	svc    PlanService
	store  *repos.MemoryPlanStore
	stream *events.MemoryStream
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repos.NewMemoryPlanStore()
	stream := events.NewMemoryStream(0)
	svc := NewPlanService(logger.Nop(), store, events.NewPublisher(logger.Nop(), stream), plans.NewValidator())
	return &fixture{svc: svc, store: store, stream: stream}
}

func parse(t *testing.T, raw string) record.Value {
	t.Helper()
	v, err := record.Parse([]byte(raw))
	require.NoError(t, err)
	return v
}

func TestPlanLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Create(ctx, parse(t, planP1))
	require.NoError(t, err)
	assert.Equal(t, "p1", created.ObjectID)
	e1 := created.Fingerprint

	read, err := f.svc.Read(ctx, "p1", "")
	require.NoError(t, err)
	assert.Equal(t, e1, read.Fingerprint)
	assert.Equal(t, "inNetwork", read.Record.String("planType"))

	updated, err := f.svc.Update(ctx, "p1", httpx.FormatETag(e1), parse(t, `{"planType":"X"}`))
	require.NoError(t, err)
	e2 := updated.Fingerprint
	assert.NotEqual(t, e1, e2)
	assert.Equal(t, "X", updated.Record.String("planType"))

	read, err = f.svc.Read(ctx, "p1", "")
	require.NoError(t, err)
	assert.Equal(t, e2, read.Fingerprint)

	require.NoError(t, f.svc.Delete(ctx, "p1"))
	_, err = f.svc.Read(ctx, "p1", "")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 3, f.stream.Pending(), "one event per confirmed write")
}

func TestCreateDuplicateRule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Create(ctx, parse(t, planP1))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, parse(t, planP1))
	assert.ErrorIs(t, err, ErrDuplicateContent)
	assert.Equal(t, 1, f.stream.Pending(), "duplicate must not emit")

	changed := parse(t, planP1).(record.Object)
	changed["planType"] = record.String("outOfNetwork")
	res, err := f.svc.Create(ctx, changed)
	require.NoError(t, err)

	stored, _, err := f.store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "outOfNetwork", stored.String("planType"))
	fp, _ := record.Fingerprint(stored)
	assert.Equal(t, fp, res.Fingerprint)
}

func TestCreateRejectsInvalidShapeWithoutWriting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Create(ctx, parse(t, `{"objectId":"p1","objectType":"plan"}`))
	require.ErrorIs(t, err, ErrInvalidShape)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.NotEmpty(t, ve.Fields)

	_, ok, _ := f.store.Get(ctx, "p1")
	assert.False(t, ok)
	assert.Equal(t, 0, f.stream.Pending())
}

func TestConditionalRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.Create(ctx, parse(t, planP1))
	require.NoError(t, err)

	res, err := f.svc.Read(ctx, "p1", httpx.FormatETag(created.Fingerprint))
	require.NoError(t, err)
	assert.True(t, res.NotModified)
	assert.Nil(t, res.Record)

	res, err = f.svc.Read(ctx, "p1", `"something-else"`)
	require.NoError(t, err)
	assert.False(t, res.NotModified)
	assert.Equal(t, created.Fingerprint, res.Fingerprint)
}

func TestConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.Create(ctx, parse(t, planP1))
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, "p1", "", parse(t, `{"planType":"X"}`))
	assert.ErrorIs(t, err, ErrPreconditionMissing)

	_, err = f.svc.Update(ctx, "missing", `"abc"`, parse(t, `{"planType":"X"}`))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Update(ctx, "p1", `"stale"`, parse(t, `{"planType":"X"}`))
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	stored, _, _ := f.store.Get(ctx, "p1")
	assert.Equal(t, "inNetwork", stored.String("planType"))

	_, err = f.svc.Update(ctx, "p1", httpx.FormatETag(created.Fingerprint), parse(t, `{"objectId":"other"}`))
	assert.ErrorIs(t, err, ErrInvalidShape)

	_, err = f.svc.Update(ctx, "p1", httpx.FormatETag(created.Fingerprint), parse(t, `{"planCostShares":{"copay":-1}}`))
	assert.ErrorIs(t, err, ErrInvalidShape)

	same, err := f.svc.Update(ctx, "p1", httpx.FormatETag(created.Fingerprint), parse(t, `{}`))
	require.NoError(t, err)
	assert.Equal(t, created.Fingerprint, same.Fingerprint, "empty patch keeps the fingerprint")
}

func TestUpdateMergesLinkedServicesByIdentity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.Create(ctx, parse(t, planP1))
	require.NoError(t, err)

	res, err := f.svc.Update(ctx, "p1", httpx.FormatETag(created.Fingerprint), parse(t, `{"linkedPlanServices":[
		{"objectId":"27283xvx9asdff-504","planserviceCostShares":{"copay":15}},
		{"linkedService":{"_org":"example.com","objectId":"s-2","objectType":"service","name":"dental"},
		 "planserviceCostShares":{"deductible":1,"_org":"example.com","copay":2,"objectId":"c-2","objectType":"membercostshare"},
		 "_org":"example.com","objectId":"lps-2","objectType":"planservice"}
	]}`))
	require.NoError(t, err)

	lps := res.Record["linkedPlanServices"].(record.Array)
	require.Len(t, lps, 2)
	first := lps[0].(record.Object)
	assert.Equal(t, "27283xvx9asdff-504", record.ID(first))
	pcs := first["planserviceCostShares"].(record.Object)
	assert.Equal(t, record.Number("15"), pcs["copay"])
	assert.Equal(t, record.Number("10"), pcs["deductible"])
	assert.Equal(t, "lps-2", record.ID(lps[1]))
}

func TestUpdateRejectsPatchThatBreaksTheSchema(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.Create(ctx, parse(t, planP1))
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, "p1", httpx.FormatETag(created.Fingerprint),
		parse(t, `{"linkedPlanServices":[{"objectId":"new-without-children"}]}`))
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestUpdateRejectsNullThatClearsARequiredField(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.Create(ctx, parse(t, planP1))
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, "p1", httpx.FormatETag(created.Fingerprint), parse(t, `{"creationDate":null}`))
	assert.ErrorIs(t, err, ErrInvalidShape)

	got, err := f.svc.Read(ctx, "p1", "")
	require.NoError(t, err)
	assert.Equal(t, created.Fingerprint, got.Fingerprint, "rejected update must not be stored")
}

func TestDeleteMissingIsNotFound(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.svc.Delete(context.Background(), "nope"), ErrNotFound)
	assert.Equal(t, 0, f.stream.Pending())
}

type brokenStream struct{ *events.MemoryStream }

func (brokenStream) Publish(context.Context, []byte) error { return events.ErrUnavailable }

func TestPublishFailureDoesNotUndoTheWrite(t *testing.T) {
	ctx := context.Background()
	store := repos.NewMemoryPlanStore()
	pub := events.NewPublisher(logger.Nop(), brokenStream{events.NewMemoryStream(0)})
	svc := NewPlanService(logger.Nop(), store, pub, plans.NewValidator())

	_, err := svc.Create(ctx, parse(t, planP1))
	require.NoError(t, err)
	_, ok, _ := store.Get(ctx, "p1")
	assert.True(t, ok)
}

type conflictingStore struct{ *repos.MemoryPlanStore }

func (conflictingStore) Update(context.Context, string, repos.UpdateFunc) (record.Object, error) {
	return nil, repos.ErrConflict
}

type downStore struct{ *repos.MemoryPlanStore }

func (downStore) Get(context.Context, string) (record.Object, bool, error) {
	return nil, false, repos.ErrUnavailable
}

func TestStoreFailuresAreClassified(t *testing.T) {
	ctx := context.Background()
	pub := events.NewPublisher(logger.Nop(), events.NewMemoryStream(0))

	racing := NewPlanService(logger.Nop(), conflictingStore{repos.NewMemoryPlanStore()}, pub, plans.NewValidator())
	_, err := racing.Update(ctx, "p1", `"x"`, parse(t, `{}`))
	assert.ErrorIs(t, err, ErrPreconditionFailed, "a lost compare-and-swap is a failed precondition")

	down := NewPlanService(logger.Nop(), downStore{repos.NewMemoryPlanStore()}, pub, plans.NewValidator())
	_, err = down.Read(ctx, "p1", "")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
