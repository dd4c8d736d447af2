package permission

import (
	"context"
	"testing"

	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	grants map[string][]string
	calls  int
}

func (f *fakeStore) ListForRole(_ context.Context, _, role string) ([]string, error) {
	f.calls++
	return f.grants[role], nil
}

func testContext() context.Context {
	return tenant.WithCompany(context.Background(), "11111111-2222-3333-4444-555555555555", "demo")
}

func TestCheckerAdminBypassesStore(t *testing.T) {
	store := &fakeStore{}
	c := NewChecker(store, logger.New("test", "test"))

	ok, err := c.Has(testContext(), "ADMIN", PayrollVoid)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, store.calls)
}

func TestCheckerGrantedAndDenied(t *testing.T) {
	store := &fakeStore{grants: map[string][]string{
		"FRONTDESK": {TimeEntriesView, ScheduleView},
	}}
	c := NewChecker(store, logger.New("test", "test"))

	ok, err := c.Has(testContext(), "FRONTDESK", ScheduleView)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Has(testContext(), "FRONTDESK", PayrollGenerate)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckerNormalizesLegacyRole(t *testing.T) {
	store := &fakeStore{grants: map[string][]string{
		"FRONTDESK": {TimeEntriesView},
	}}
	c := NewChecker(store, logger.New("test", "test"))

	ok, err := c.Has(testContext(), "EMPLOYEE", TimeEntriesView)
	require.NoError(t, err)
	assert.True(t, ok, "legacy EMPLOYEE rows resolve FRONTDESK grants")
}

func TestCheckerRequiresTenant(t *testing.T) {
	c := NewChecker(&fakeStore{}, logger.New("test", "test"))

	_, err := c.Has(context.Background(), "FRONTDESK", TimeEntriesView)
	assert.Error(t, err)
}

func TestGlobalDefaultsAreKnown(t *testing.T) {
	for role, perms := range GlobalDefaults {
		for _, p := range perms {
			assert.True(t, IsKnown(p), "%s grants unknown permission %s", role, p)
		}
	}
}
