package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/warden/internal/model"
)

func TestControllerEmpty(t *testing.T) {
	c := NewController(15, time.UTC)
	out := c.Output()
	assert.Empty(t, out.Visible)
	assert.Equal(t, 1, out.Page.Page)
	assert.Equal(t, 1, out.Page.TotalPages)
	assert.Equal(t, 0, out.Stats.Total)
}

func TestControllerFilterResetsPage(t *testing.T) {
	c := NewController(15, time.UTC)
	c.ApplySnapshot(1, makeRecords(40, model.DecisionAllowed))
	c.SetPage(3)
	require.Equal(t, 3, c.Output().Page.Page)

	c.SetSearch("10.0.0")
	assert.Equal(t, 1, c.Output().Page.Page)

	c.SetPage(2)
	c.SetMethod(model.MethodGet)
	assert.Equal(t, 1, c.Output().Page.Page)

	c.SetPage(2)
	c.SetDecision(model.DecisionAllowed)
	assert.Equal(t, 1, c.Output().Page.Page)

	c.SetPage(2)
	c.SetStatus(200)
	assert.Equal(t, 1, c.Output().Page.Page)
}

func TestControllerUnchangedFilterKeepsPage(t *testing.T) {
	c := NewController(15, time.UTC)
	c.ApplySnapshot(1, makeRecords(40, model.DecisionAllowed))
	c.SetPage(2)
	c.SetMethod(model.MethodAll)
	c.SetSearch("")
	assert.Equal(t, 2, c.Output().Page.Page)
}

func TestControllerSnapshotKeepsAndClampsPage(t *testing.T) {
	c := NewController(15, time.UTC)
	c.ApplySnapshot(1, makeRecords(40, model.DecisionAllowed))
	c.SetPage(2)

	c.ApplySnapshot(2, makeRecords(45, model.DecisionAllowed))
	assert.Equal(t, 2, c.Output().Page.Page)

	c.ApplySnapshot(3, makeRecords(10, model.DecisionAllowed))
	assert.Equal(t, 1, c.Output().Page.Page)
	assert.Len(t, c.Output().Visible, 10)
}

func TestControllerIgnoresOlderSnapshot(t *testing.T) {
	c := NewController(15, time.UTC)
	require.True(t, c.ApplySnapshot(5, makeRecords(3, model.DecisionBlocked)))
	assert.False(t, c.ApplySnapshot(4, makeRecords(9, model.DecisionAllowed)))
	assert.Equal(t, uint64(5), c.Seq())
	assert.Equal(t, 3, c.Output().Stats.Total)
}

func TestControllerStatsFollowFilter(t *testing.T) {
	c := NewController(15, time.UTC)
	c.ApplySnapshot(1, mixed())
	c.SetDecision(model.DecisionBlocked)

	stats := c.Output().Stats
	assert.Equal(t, 10, stats.Total)
	assert.Equal(t, 10, stats.PerDecision[model.DecisionBlocked])
	assert.Equal(t, 0, stats.PerDecision[model.DecisionAllowed])
}

func TestControllerSelectionSurvivesRefresh(t *testing.T) {
	c := NewController(15, time.UTC)
	c.ApplySnapshot(1, makeRecords(5, model.DecisionAllowed))
	require.True(t, c.SelectIndex(0))
	picked := *c.Selected()

	refreshed := makeRecords(5, model.DecisionAllowed)
	refreshed[0].Decision = model.DecisionBlocked
	c.ApplySnapshot(2, refreshed)

	require.NotNil(t, c.Selected())
	assert.Equal(t, picked, *c.Selected())
	assert.Equal(t, model.DecisionAllowed, c.Selected().Decision)

	c.CloseDetail()
	assert.Nil(t, c.Selected())
	assert.False(t, c.SelectIndex(99))
}

func TestControllerPageNavigation(t *testing.T) {
	c := NewController(10, time.UTC)
	c.ApplySnapshot(1, makeRecords(25, model.DecisionAllowed))

	c.PrevPage()
	assert.Equal(t, 1, c.Output().Page.Page)
	c.NextPage()
	c.NextPage()
	c.NextPage()
	assert.Equal(t, 3, c.Output().Page.Page)
	assert.Len(t, c.Output().Visible, 5)

	c.SetPageSize(25)
	assert.Equal(t, 1, c.Output().Page.Page)
}
