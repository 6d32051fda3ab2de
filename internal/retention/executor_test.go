package retention

import (
	"context"
	"testing"
	"time"

	"logvault/internal/index"
	"logvault/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeDeleter struct {
	calls []index.DeleteFilter
}

func (f *fakeDeleter) DeleteWhere(filter index.DeleteFilter) (int, error) {
	f.calls = append(f.calls, filter)
	return 7, nil
}

type fakePolicyStore struct {
	policies []types.RetentionPolicy
}

func (f *fakePolicyStore) List() []types.RetentionPolicy { return f.policies }
func (f *fakePolicyStore) Get(id string) (types.RetentionPolicy, bool) {
	for _, p := range f.policies {
		if p.ID == id {
			return p, true
		}
	}
	return types.RetentionPolicy{}, false
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestExecutor_ApplyAllRunsOnlyEnabledPolicies(t *testing.T) {
	del := &fakeDeleter{}
	store := &fakePolicyStore{policies: []types.RetentionPolicy{
		{ID: "p1", MaxAgeDays: 30, ApplyToSources: []string{"app.log"}, Enabled: true},
		{ID: "p2", MaxAgeDays: 7, ApplyToSources: []string{"debug.log"}, Enabled: false},
	}}
	ex := New(del, store, time.Hour, testLogger())

	require.NoError(t, ex.ApplyAll(context.Background()))
	require.Len(t, del.calls, 1)
	require.Equal(t, []string{"app.log"}, del.calls[0].Sources)
}

func TestExecutor_OverlappingPoliciesSmallestMaxAgeWins(t *testing.T) {
	del := &fakeDeleter{}
	store := &fakePolicyStore{policies: []types.RetentionPolicy{
		{ID: "loose", MaxAgeDays: 90, ApplyToSources: []string{"app.log"}, Enabled: true},
		{ID: "strict", MaxAgeDays: 7, ApplyToSources: []string{"app.log"}, Enabled: true},
	}}
	ex := New(del, store, time.Hour, testLogger())

	require.NoError(t, ex.ApplyAll(context.Background()))
	require.Len(t, del.calls, 1)

	cutoff := del.calls[0].Before
	expected := time.Now().AddDate(0, 0, -7)
	require.WithinDuration(t, expected, cutoff, time.Minute)
}

func TestExecutor_WildcardPolicyBoundsNamedSourcePolicies(t *testing.T) {
	del := &fakeDeleter{}
	store := &fakePolicyStore{policies: []types.RetentionPolicy{
		{ID: "named", MaxAgeDays: 90, ApplyToSources: []string{"app.log"}, Enabled: true},
		{ID: "wildcard", MaxAgeDays: 3, ApplyToSources: nil, Enabled: true},
	}}
	ex := New(del, store, time.Hour, testLogger())

	require.NoError(t, ex.ApplyAll(context.Background()))
	require.Len(t, del.calls, 1)
	require.Empty(t, del.calls[0].Sources)
}

func TestExecutor_ApplySingleByID(t *testing.T) {
	del := &fakeDeleter{}
	store := &fakePolicyStore{policies: []types.RetentionPolicy{
		{ID: "p1", MaxAgeDays: 30, ApplyToSources: []string{"app.log"}, Enabled: true},
	}}
	ex := New(del, store, time.Hour, testLogger())

	n, err := ex.Apply(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, 7, n)
}

func TestExecutor_ApplyUnknownPolicyIsNotFoundError(t *testing.T) {
	del := &fakeDeleter{}
	store := &fakePolicyStore{}
	ex := New(del, store, time.Hour, testLogger())

	_, err := ex.Apply(context.Background(), "missing")
	require.Error(t, err)
}

func TestExecutor_DisjointSourcePoliciesBothRun(t *testing.T) {
	del := &fakeDeleter{}
	store := &fakePolicyStore{policies: []types.RetentionPolicy{
		{ID: "p1", MaxAgeDays: 30, ApplyToSources: []string{"app.log"}, Enabled: true},
		{ID: "p2", MaxAgeDays: 60, ApplyToSources: []string{"db.log"}, Enabled: true},
	}}
	ex := New(del, store, time.Hour, testLogger())

	require.NoError(t, ex.ApplyAll(context.Background()))
	require.Len(t, del.calls, 2)
}
