package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plansync/internal/config"
	"plansync/internal/types"
)

// stubAuth resolves fixed tokens to actors.
type stubAuth struct {
	actors map[string]*types.Actor
}

func (a *stubAuth) ResolveToken(_ context.Context, token string) (*types.Actor, error) {
	actor, ok := a.actors[token]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid authentication token", nil)
	}
	return actor, nil
}

type fakeStatus struct {
	snapshots map[string]*types.PlanLimitSnapshot
	limitErr  error
}

func (f *fakeStatus) Snapshot(_ context.Context, userID string) (*types.PlanLimitSnapshot, error) {
	snap, ok := f.snapshots[userID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return snap, nil
}

func (f *fakeStatus) CheckLimit(context.Context, string, int) error { return f.limitErr }

type fakeRecon struct {
	report     *types.ReconciliationReport
	deltas     map[string]*types.SyncDelta
	fixErr     error
	syncResult *types.SyncAllResult
}

func (f *fakeRecon) Report(context.Context) (*types.ReconciliationReport, error) {
	return f.report, nil
}

func (f *fakeRecon) FixUser(_ context.Context, userID string) (*types.SyncDelta, error) {
	if f.fixErr != nil {
		return nil, f.fixErr
	}
	delta, ok := f.deltas[userID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return delta, nil
}

func (f *fakeRecon) SyncAll(context.Context) (*types.SyncAllResult, error) {
	return f.syncResult, nil
}

type fakeProps struct {
	props map[string]*types.Property
}

func (f *fakeProps) GetByID(_ context.Context, id string) (*types.Property, error) {
	p, ok := f.props[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundProperty, "property not found", nil)
	}
	copied := *p
	return &copied, nil
}

func (f *fakeProps) SetActive(_ context.Context, id string, active bool) (*types.Property, error) {
	p, ok := f.props[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundProperty, "property not found", nil)
	}
	p.Active = active
	copied := *p
	return &copied, nil
}

type fakePlans struct {
	assignments map[string]*types.PlanAssignment
	assigned    map[string]string
	removed     []string
}

func (f *fakePlans) GetAssignment(_ context.Context, userID string) (*types.PlanAssignment, error) {
	return f.assignments[userID], nil
}

func (f *fakePlans) Assign(_ context.Context, userID, planID string) error {
	if f.assigned == nil {
		f.assigned = make(map[string]string)
	}
	f.assigned[userID] = planID
	return nil
}

func (f *fakePlans) Remove(_ context.Context, userID string) error {
	f.removed = append(f.removed, userID)
	return nil
}

func brokerSnap(usage, max int) *types.PlanLimitSnapshot {
	name := "basic"
	return &types.PlanLimitSnapshot{
		PlanName:        &name,
		IsActive:        true,
		CurrentUsage:    usage,
		MaxProperties:   max,
		UsagePercentage: usage * 100 / max,
		RemainingSlots:  max - usage,
		IsAtLimit:       usage >= max,
	}
}

type testEnv struct {
	server *Server
	status *fakeStatus
	recon  *fakeRecon
	props  *fakeProps
	plans  *fakePlans
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := NewServer(cfg, logger)
	require.NoError(t, err)

	env := &testEnv{
		server: s,
		status: &fakeStatus{snapshots: map[string]*types.PlanLimitSnapshot{"broker-1": brokerSnap(4, 10)}},
		recon: &fakeRecon{
			deltas:     map[string]*types.SyncDelta{"broker-1": {OldCount: 3, NewCount: 5, Difference: 2}},
			syncResult: &types.SyncAllResult{Processed: 2, Errors: []types.SyncUserError{}},
		},
		props: &fakeProps{props: map[string]*types.Property{
			"prop-1": {ID: "prop-1", OwnerID: "broker-1", Active: true},
			"prop-2": {ID: "prop-2", OwnerID: "broker-1", Active: false},
			"prop-x": {ID: "prop-x", OwnerID: "someone-else", Active: true},
		}},
		plans: &fakePlans{assignments: map[string]*types.PlanAssignment{
			"broker-1": {UserID: "broker-1", Plan: types.Plan{Name: "basic", Tier: types.PlanBasic, MaxProperties: 10}},
		}},
	}

	s.Status = env.status
	s.Reconciler = env.recon
	s.Properties = env.props
	s.Plans = env.plans
	s.Authenticator = &stubAuth{actors: map[string]*types.Actor{
		"broker-token": {ID: "broker-1", Type: types.ActorTypeUser},
		"admin-token":  {ID: "admin", Type: types.ActorTypeAdmin},
	}}
	s.MountRoutes()
	return env
}

func doRequest(t *testing.T, env *testEnv, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestLimitStats(t *testing.T) {
	env := newTestServer(t)

	rec := doRequest(t, env, http.MethodGet, "/properties/limit-stats", "broker-token", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap types.PlanLimitSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 4, snap.CurrentUsage)
	assert.Equal(t, 10, snap.MaxProperties)
}

func TestLimitStats_RequiresToken(t *testing.T) {
	env := newTestServer(t)

	rec := doRequest(t, env, http.MethodGet, "/properties/limit-stats", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeAuthTokenMissing), resp.Error.Code)
}

func TestToggleActive_Deactivate(t *testing.T) {
	env := newTestServer(t)

	rec := doRequest(t, env, http.MethodPut, "/properties/prop-1/toggle-active", "broker-token", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp toggleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "propertyToggled", resp.EventType)
	assert.False(t, resp.Property.Active)
	require.NotNil(t, resp.LimitInfo)
	assert.Equal(t, 4, resp.LimitInfo.CurrentUsage)
}

func TestToggleActive_ActivationBlockedAtLimit(t *testing.T) {
	env := newTestServer(t)
	env.status.limitErr = types.NewAppErrorWithDetails(
		types.ErrCodeLimitProperties,
		"property limit reached",
		nil,
		map[string]any{"current": 10, "limit": 10},
	)

	rec := doRequest(t, env, http.MethodPut, "/properties/prop-2/toggle-active", "broker-token", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeLimitProperties), resp.Error.Code)

	// The property must remain inactive.
	assert.False(t, env.props.props["prop-2"].Active)
}

func TestToggleActive_DeactivationSkipsLimitCheck(t *testing.T) {
	env := newTestServer(t)
	env.status.limitErr = types.NewAppError(types.ErrCodeLimitProperties, "property limit reached", nil)

	// prop-1 is active; deactivating must succeed even when at the limit.
	rec := doRequest(t, env, http.MethodPut, "/properties/prop-1/toggle-active", "broker-token", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestToggleActive_OtherUsersPropertyHidden(t *testing.T) {
	env := newTestServer(t)

	rec := doRequest(t, env, http.MethodPut, "/properties/prop-x/toggle-active", "broker-token", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncCount(t *testing.T) {
	env := newTestServer(t)

	rec := doRequest(t, env, http.MethodPost, "/properties/sync-count", "broker-token", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp syncCountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "propertyCountSynced", resp.EventType)
	require.NotNil(t, resp.SyncResult)
	assert.Equal(t, 2, resp.SyncResult.Difference)
	require.NotNil(t, resp.Stats)
}

func TestPlanStatus_IncludesTier(t *testing.T) {
	env := newTestServer(t)

	rec := doRequest(t, env, http.MethodGet, "/users/plan-status", "broker-token", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp planStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, types.PlanBasic, resp.PlanTier)
	assert.Equal(t, 4, resp.CurrentUsage)
}

func TestAdminEndpoints_RejectNonAdmin(t *testing.T) {
	env := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/admin/property-report"},
		{http.MethodPost, "/admin/sync-property-counts"},
		{http.MethodPost, "/admin/fix-user-count/broker-1"},
		{http.MethodPut, "/plans/assign/broker-1"},
		{http.MethodDelete, "/plans/remove/broker-1"},
	} {
		rec := doRequest(t, env, tc.method, tc.path, "broker-token", "")
		assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestPropertyReport(t *testing.T) {
	env := newTestServer(t)
	env.recon.report = &types.ReconciliationReport{
		TotalUsers:      2,
		Inconsistencies: 1,
		Users: []types.UserReport{
			{UserID: "broker-1", StoredCount: 3, ActualActiveCount: 5, HasInconsistency: true, Difference: 2},
			{UserID: "broker-2", StoredCount: 2, ActualActiveCount: 2},
		},
	}

	rec := doRequest(t, env, http.MethodGet, "/admin/property-report", "admin-token", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report types.ReconciliationReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Inconsistencies)
	require.Len(t, report.Users, 2)
	assert.Equal(t, 2, report.Users[0].Difference)
}

func TestSyncAll_ReportsPartialFailure(t *testing.T) {
	env := newTestServer(t)
	env.recon.syncResult = &types.SyncAllResult{
		Processed: 2,
		Errors:    []types.SyncUserError{{UserID: "u3", UserName: "Carol", Error: "database timeout"}},
	}

	rec := doRequest(t, env, http.MethodPost, "/admin/sync-property-counts", "admin-token", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp syncAllResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success, "partial failure still reports success")
	assert.Equal(t, 2, resp.Processed)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "u3", resp.Errors[0].UserID)
}

func TestFixUserCount(t *testing.T) {
	env := newTestServer(t)

	rec := doRequest(t, env, http.MethodPost, "/admin/fix-user-count/broker-1", "admin-token", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp fixUserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 5, resp.NewStoredCount)
}

func TestAssignPlan(t *testing.T) {
	env := newTestServer(t)

	rec := doRequest(t, env, http.MethodPut, "/plans/assign/broker-2", "admin-token", `{"planId":"plan-pro"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "plan-pro", env.plans.assigned["broker-2"])
}

func TestAssignPlan_MissingPlanID(t *testing.T) {
	env := newTestServer(t)

	rec := doRequest(t, env, http.MethodPut, "/plans/assign/broker-2", "admin-token", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemovePlan(t *testing.T) {
	env := newTestServer(t)

	rec := doRequest(t, env, http.MethodDelete, "/plans/remove/broker-1", "admin-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"broker-1"}, env.plans.removed)
}

func TestHealth_NoAuthRequired(t *testing.T) {
	env := newTestServer(t)

	rec := doRequest(t, env, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
