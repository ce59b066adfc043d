package dispatcher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Bizinso/BizSocials-sub013/internal/models"
	"github.com/Bizinso/BizSocials-sub013/internal/registry"
)

// fanoutStore serves FindSubscribed from a fixed endpoint set; the other
// EndpointStore methods are unused by the router.
type fanoutStore struct {
	endpoints []models.Endpoint
}

func (f *fanoutStore) FindSubscribed(_ context.Context, scopeID uuid.UUID, event string) ([]models.Endpoint, error) {
	var out []models.Endpoint
	for _, ep := range f.endpoints {
		if ep.ScopeID == scopeID && ep.Active && ep.Subscribed(event) {
			out = append(out, ep)
		}
	}
	return out, nil
}

func (f *fanoutStore) Create(context.Context, *models.Endpoint) error { return nil }
func (f *fanoutStore) GetByID(context.Context, uuid.UUID) (*models.Endpoint, error) {
	return nil, registry.ErrNotFound
}
func (f *fanoutStore) GetScoped(context.Context, uuid.UUID, uuid.UUID) (*models.Endpoint, error) {
	return nil, registry.ErrNotFound
}
func (f *fanoutStore) List(context.Context, uuid.UUID, registry.Page) ([]models.Endpoint, int64, error) {
	return nil, 0, nil
}
func (f *fanoutStore) Update(context.Context, uuid.UUID, uuid.UUID, map[string]interface{}) (int64, error) {
	return 0, nil
}
func (f *fanoutStore) DeleteCascade(context.Context, uuid.UUID, uuid.UUID) (int64, error) {
	return 0, nil
}
func (f *fanoutStore) RecordAttempt(context.Context, uuid.UUID, time.Time, bool) error { return nil }
func (f *fanoutStore) BumpFailureCount(context.Context, uuid.UUID) error               { return nil }
func (f *fanoutStore) DeactivateIfFailing(context.Context, uuid.UUID, int) (bool, error) {
	return false, nil
}

type capturePublisher struct {
	tasks []models.DeliveryTask
}

func (c *capturePublisher) PublishTask(task models.DeliveryTask) error {
	c.tasks = append(c.tasks, task)
	return nil
}

func TestDispatch_FanOut(t *testing.T) {
	scope := uuid.New()
	a := models.Endpoint{ID: uuid.New(), ScopeID: scope, Active: true, SubscribedEvents: pq.StringArray{"x"}}
	b := models.Endpoint{ID: uuid.New(), ScopeID: scope, Active: true, SubscribedEvents: pq.StringArray{"x", "y"}}
	c := models.Endpoint{ID: uuid.New(), ScopeID: scope, Active: false, SubscribedEvents: pq.StringArray{"x"}}
	otherScope := models.Endpoint{ID: uuid.New(), ScopeID: uuid.New(), Active: true, SubscribedEvents: pq.StringArray{"x"}}

	pub := &capturePublisher{}
	router := NewRouter(&fanoutStore{endpoints: []models.Endpoint{a, b, c, otherScope}}, pub, zap.NewNop())

	payload := json.RawMessage(`{"post_id":42}`)
	require.NoError(t, router.Dispatch(context.Background(), "x", payload, scope))

	require.Len(t, pub.tasks, 2, "active subscribed endpoints only")
	got := map[uuid.UUID]models.DeliveryTask{}
	for _, task := range pub.tasks {
		got[task.EndpointID] = task
		assert.Equal(t, "x", task.Event)
		assert.Equal(t, 1, task.Attempt)
		assert.False(t, task.Test)
		assert.JSONEq(t, string(payload), string(task.Payload))
	}
	assert.Contains(t, got, a.ID)
	assert.Contains(t, got, b.ID)
	assert.NotContains(t, got, c.ID)
	assert.NotContains(t, got, otherScope.ID)
}

func TestDispatch_NoMatchesIsNoop(t *testing.T) {
	pub := &capturePublisher{}
	router := NewRouter(&fanoutStore{}, pub, zap.NewNop())

	require.NoError(t, router.Dispatch(context.Background(), "x", nil, uuid.New()))
	assert.Empty(t, pub.tasks)
}

func TestDispatch_EventFilter(t *testing.T) {
	scope := uuid.New()
	ep := models.Endpoint{ID: uuid.New(), ScopeID: scope, Active: true, SubscribedEvents: pq.StringArray{"y"}}

	pub := &capturePublisher{}
	router := NewRouter(&fanoutStore{endpoints: []models.Endpoint{ep}}, pub, zap.NewNop())

	require.NoError(t, router.Dispatch(context.Background(), "x", nil, scope))
	assert.Empty(t, pub.tasks)

	require.NoError(t, router.Dispatch(context.Background(), "y", nil, scope))
	assert.Len(t, pub.tasks, 1)
}

func TestSourceConsumer_HandleEvent(t *testing.T) {
	scope := uuid.New()
	ep := models.Endpoint{ID: uuid.New(), ScopeID: scope, Active: true, SubscribedEvents: pq.StringArray{"post.published"}}

	pub := &capturePublisher{}
	router := NewRouter(&fanoutStore{endpoints: []models.Endpoint{ep}}, pub, zap.NewNop())
	sc := NewSourceConsumer(nil, nil, router, zap.NewNop())

	msg, err := json.Marshal(models.SourceEvent{
		Event:   "post.published",
		ScopeID: scope,
		Payload: json.RawMessage(`{"post_id":1}`),
	})
	require.NoError(t, err)

	require.NoError(t, sc.HandleEvent(string(msg)))
	assert.Len(t, pub.tasks, 1)

	assert.Error(t, sc.HandleEvent("{not json"), "poison message must error for nack")
	assert.Error(t, sc.HandleEvent(`{"scope_id":"`+scope.String()+`"}`), "missing event name")
}
