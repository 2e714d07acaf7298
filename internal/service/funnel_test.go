package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/cutout-bot/internal/model"
	"github.com/sakif/cutout-bot/internal/quota"
)

func TestStart_RecordsEventAndUser(t *testing.T) {
	f := newImageFixture(t)
	ctx := context.Background()

	require.NoError(t, f.funnel.Start(ctx, 11))
	require.NoError(t, f.funnel.Start(ctx, 11))

	assert.Equal(t, []model.EventKind{model.EventStart, model.EventStart}, f.kinds(t, 11))
	_, err := f.db.GetUser(ctx, 11)
	assert.NoError(t, err)
}

func TestConfirmSubscription(t *testing.T) {
	f := newImageFixture(t)
	ctx := context.Background()

	ok, err := f.funnel.ConfirmSubscription(ctx, 12)
	require.NoError(t, err)
	assert.False(t, ok)

	f.subs.set(true)
	ok, err = f.funnel.ConfirmSubscription(ctx, 12)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []model.EventKind{model.EventSubFail, model.EventSubOK}, f.kinds(t, 12))
}

func TestShowTariffs(t *testing.T) {
	f := newImageFixture(t)
	ctx := context.Background()

	plans, err := f.funnel.ShowTariffs(ctx, 13, false)
	require.NoError(t, err)
	assert.Len(t, plans, 4)

	_, err = f.funnel.ShowTariffs(ctx, 13, true)
	require.NoError(t, err)

	assert.Equal(t, []model.EventKind{
		model.EventTariffsShown,
		model.EventTariffsClicked,
		model.EventTariffsShown,
	}, f.kinds(t, 13))
}

func TestUsageSummary(t *testing.T) {
	f := newImageFixture(t)
	ctx := context.Background()

	sum, err := f.funnel.UsageSummary(ctx, 14)
	require.NoError(t, err)
	assert.Equal(t, "2026-03", sum.Month)
	assert.Equal(t, 0, sum.Used)
	assert.Equal(t, quota.Remaining{Free: 1, Subscription: 1, HardCap: 50}, sum.Remaining)

	_, err = f.svc.Process(ctx, 14, photo)
	require.NoError(t, err)

	sum, err = f.funnel.UsageSummary(ctx, 14)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Used)
	assert.Equal(t, 0, sum.Remaining.Free)
	assert.Equal(t, 0, f.subs.calls, "summary never consults the oracle")
}
