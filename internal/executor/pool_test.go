package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/syncengine/internal/errs"
)

func TestPool_RunsChildAfterParentSucceeds(t *testing.T) {
	var mu sync.Mutex
	var order []int64

	run := func(ctx context.Context, j *Job) Result {
		mu.Lock()
		order = append(order, j.ID)
		mu.Unlock()
		if j.ID == 1 {
			time.Sleep(20 * time.Millisecond)
		}
		return Result{Job: j, Info: errs.New(errs.Ok, errs.CauseNone, nil)}
	}

	p := newPool(4, run)
	jobs := []*Job{
		{ID: 1},
		{ID: 2, ParentID: 1},
	}

	var results []Result
	for res := range p.Run(context.Background(), jobs) {
		results = append(results, res)
	}

	require.Len(t, results, 2)
	require.Len(t, order, 2)
	assert.Equal(t, int64(1), order[0], "parent must run before its child")
	assert.Equal(t, int64(2), order[1])
}

func TestPool_SkipsChildWhenParentFails(t *testing.T) {
	run := func(ctx context.Context, j *Job) Result {
		if j.ID == 1 {
			return Result{Job: j, Info: errs.New(errs.SystemError, errs.CauseFileAccessError, nil)}
		}
		return Result{Job: j, Info: errs.New(errs.Ok, errs.CauseNone, nil)}
	}

	p := newPool(4, run)
	jobs := []*Job{
		{ID: 1},
		{ID: 2, ParentID: 1},
	}

	byID := map[int64]Result{}
	for res := range p.Run(context.Background(), jobs) {
		byID[res.Job.ID] = res
	}

	require.Len(t, byID, 2)
	assert.False(t, byID[1].Info.IsOk())
	assert.True(t, byID[2].Info.IsOk(), "a child skipped after its parent failed reports Ok/OperationCanceled")
	assert.Equal(t, errs.CauseOperationCanceled, byID[2].Info.Cause)
}

func TestPool_ResultFor_ReturnsStoredResultAfterCompletion(t *testing.T) {
	run := func(ctx context.Context, j *Job) Result {
		return Result{Job: j, Info: errs.New(errs.Ok, errs.CauseNone, nil), RemoteID: "abc"}
	}

	p := newPool(2, run)
	jobs := []*Job{{ID: 1}}
	for range p.Run(context.Background(), jobs) {
	}

	res, ok := p.resultFor(1)
	require.True(t, ok)
	assert.Equal(t, "abc", res.RemoteID)

	_, ok = p.resultFor(999)
	assert.False(t, ok)
}

func TestPool_DoneChan_TreatsUnknownJobAsAlreadyDone(t *testing.T) {
	p := newPool(1, func(ctx context.Context, j *Job) Result { return Result{} })
	select {
	case <-p.doneChan(42):
	case <-time.After(time.Second):
		t.Fatal("doneChan for an unscheduled id must already be closed")
	}
}
