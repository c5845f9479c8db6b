package dao_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oapcore/persistence/pkg/persistence/dao"
	"github.com/oapcore/persistence/pkg/persistence/model"
)

type stubRequest struct{ mdl *model.Model }

func (r *stubRequest) Model() *model.Model { return r.mdl }

func TestMemoryDAO_FlushRecordsBatchOnSuccess(t *testing.T) {
	d := dao.NewMemoryDAO()
	mdl := model.NewModel("m", model.KindMetrics, time.Minute)

	future := d.Flush(context.Background(), []model.PreparedRequest{&stubRequest{mdl: mdl}})
	require.NoError(t, future.Wait(context.Background()))
	assert.Equal(t, 1, d.FlushCount())
}

func TestMemoryDAO_FailNextPropagatesErrorThroughFuture(t *testing.T) {
	d := dao.NewMemoryDAO()
	wantErr := errors.New("storage unavailable")
	d.FailNext(func([]model.PreparedRequest) error { return wantErr })

	mdl := model.NewModel("m", model.KindMetrics, time.Minute)
	future := d.Flush(context.Background(), []model.PreparedRequest{&stubRequest{mdl: mdl}})

	err := future.Wait(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 0, d.FlushCount(), "a failed flush must not be recorded")
}

func TestMemoryDAO_WaitRespectsContextCancellation(t *testing.T) {
	d := dao.NewMemoryDAO()
	d.SlowDown(func() { time.Sleep(200 * time.Millisecond) })

	mdl := model.NewModel("m", model.KindMetrics, time.Minute)
	future := d.Flush(context.Background(), []model.PreparedRequest{&stubRequest{mdl: mdl}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := future.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFuture_ResolveDeliversExactlyOnce(t *testing.T) {
	future, resolve := dao.NewFuture()
	resolve(nil)

	err := future.Wait(context.Background())
	assert.NoError(t, err)
}
