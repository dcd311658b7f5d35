package tags

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/internal/models"
	"github.com/llmlab/llmlab/internal/testutil"
)

func newService(t *testing.T) (*Service, *gorm.DB, uuid.UUID) {
	t.Helper()
	db := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, db, 2001)
	return NewService(db), db, user.ID
}

func newLog(t *testing.T, db *gorm.DB, userID uuid.UUID) *models.UsageLog {
	t.Helper()
	log := &models.UsageLog{
		UserID:       userID,
		Provider:     models.ProviderOpenAI,
		Model:        "gpt-4o",
		InputTokens:  10,
		OutputTokens: 5,
		CostUSD:      0.000075,
	}
	require.NoError(t, db.Create(log).Error)
	return log
}

func TestParseHeader(t *testing.T) {
	assert.Equal(t, []string{"prod", "batch-job"}, ParseHeader("prod, batch-job"))
	assert.Equal(t, []string{"a"}, ParseHeader("a,,  ,a"))
	assert.Nil(t, ParseHeader(""))
	assert.Nil(t, ParseHeader(" , ,"))
}

func TestCreateAppliesDefaultColor(t *testing.T) {
	svc, _, userID := newService(t)

	tag, err := svc.Create(userID, "experiments", "")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTagColor, tag.Color)

	custom, err := svc.Create(userID, "prod", "#ff0000")
	require.NoError(t, err)
	assert.Equal(t, "#ff0000", custom.Color)
}

func TestCreateDuplicateReturnsExisting(t *testing.T) {
	svc, _, userID := newService(t)

	first, err := svc.Create(userID, "prod", "#ff0000")
	require.NoError(t, err)
	second, err := svc.Create(userID, "prod", "#00ff00")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "#ff0000", second.Color, "existing tag keeps its color")

	list, err := svc.List(userID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestTagNamesAreScopedPerUser(t *testing.T) {
	svc, db, userID := newService(t)
	other := testutil.NewTestUser(t, db, 2002)

	mine, err := svc.Create(userID, "prod", "")
	require.NoError(t, err)
	theirs, err := svc.Create(other.ID, "prod", "")
	require.NoError(t, err)

	assert.NotEqual(t, mine.ID, theirs.ID)
}

func TestAutoAttach(t *testing.T) {
	svc, db, userID := newService(t)
	log := newLog(t, db, userID)

	svc.AutoAttach(userID, log, ParseHeader("prod, experiments"))

	var loaded models.UsageLog
	require.NoError(t, db.Preload("Tags").First(&loaded, "id = ?", log.ID).Error)
	assert.Len(t, loaded.Tags, 2)

	// Second attach of the same names is a no-op.
	svc.AutoAttach(userID, log, ParseHeader("prod"))
	require.NoError(t, db.Preload("Tags").First(&loaded, "id = ?", log.ID).Error)
	assert.Len(t, loaded.Tags, 2)
}

func TestAttachDetach(t *testing.T) {
	svc, db, userID := newService(t)
	log := newLog(t, db, userID)

	tag, err := svc.Create(userID, "prod", "")
	require.NoError(t, err)

	require.NoError(t, svc.Attach(userID, log, tag.ID))
	require.NoError(t, svc.Detach(userID, log, tag.ID))

	var loaded models.UsageLog
	require.NoError(t, db.Preload("Tags").First(&loaded, "id = ?", log.ID).Error)
	assert.Empty(t, loaded.Tags)

	assert.ErrorIs(t, svc.Attach(userID, log, uuid.New()), ErrTagNotFound)
}

func TestUpdateAndDelete(t *testing.T) {
	svc, _, userID := newService(t)

	tag, err := svc.Create(userID, "prod", "")
	require.NoError(t, err)

	updated, err := svc.Update(userID, tag.ID, "production", "#abcdef")
	require.NoError(t, err)
	assert.Equal(t, "production", updated.Name)
	assert.Equal(t, "#abcdef", updated.Color)

	require.NoError(t, svc.Delete(userID, tag.ID))
	assert.ErrorIs(t, svc.Delete(userID, tag.ID), ErrTagNotFound)

	_, err = svc.Update(userID, uuid.New(), "x", "")
	assert.ErrorIs(t, err, ErrTagNotFound)
}
