package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/SubTrack/internal/testutil"
)

func TestFactory_ReturnsSingletons(t *testing.T) {
	f := NewFactory(testutil.SetupTestDB(t))

	assert.Same(t, f.GetRepositories(), f.GetRepositories())
	assert.NotNil(t, f.GetSubscriptionRepository())
	assert.NotNil(t, f.GetDirectoryRepository())
	assert.NotNil(t, f.GetMarkerRepository())
	assert.Equal(t, f.GetRepositories().Subscription, f.GetSubscriptionRepository())
}
