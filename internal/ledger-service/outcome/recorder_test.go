package outcome

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/radieske/wager-ledger-poc/internal/wager"
	"github.com/radieske/wager-ledger-poc/pkg/contracts/events"
)

type fakeCache struct {
	got []events.WagerSettled
	err error
}

func (f *fakeCache) Put(_ context.Context, ev events.WagerSettled) error {
	f.got = append(f.got, ev)
	return f.err
}

type fakePublisher struct{ got []wager.Outcome }

func (f *fakePublisher) PublishSettled(_ context.Context, o wager.Outcome) error {
	f.got = append(f.got, o)
	return nil
}

func TestRecorderFansOut(t *testing.T) {
	c, p := &fakeCache{}, &fakePublisher{}
	r := &Recorder{Log: zap.NewNop(), Cache: c, Publisher: p}

	r.Record(context.Background(), wager.Outcome{RequestID: 1, Settlement: &wager.Settlement{RequestID: 1}})

	assert.Len(t, c.got, 1)
	assert.Equal(t, events.SettlementVoided, c.got[0].Status)
	assert.Len(t, p.got, 1)
}

func TestRecorderSkipsMissingResponse(t *testing.T) {
	c, p := &fakeCache{}, &fakePublisher{}
	r := &Recorder{Log: zap.NewNop(), Cache: c, Publisher: p}

	r.Record(context.Background(), wager.Outcome{RequestID: 1, Err: fmt.Errorf("%w for 1", wager.ErrResponseMissing)})

	assert.Empty(t, c.got)
	assert.Empty(t, p.got)
}

func TestRecorderReportsCacheFailure(t *testing.T) {
	var stages []string
	c, p := &fakeCache{err: errors.New("redis down")}, &fakePublisher{}
	r := &Recorder{Log: zap.NewNop(), Cache: c, Publisher: p, OnError: func(s string) { stages = append(stages, s) }}

	r.Record(context.Background(), wager.Outcome{RequestID: 2, Settlement: &wager.Settlement{RequestID: 2}})

	assert.Equal(t, []string{"cache"}, stages)
	assert.Len(t, p.got, 1)
}

func TestRecorderDoesNotCacheFailedSettlement(t *testing.T) {
	c, p := &fakeCache{}, &fakePublisher{}
	r := &Recorder{Log: zap.NewNop(), Cache: c, Publisher: p}

	r.Record(context.Background(), wager.Outcome{RequestID: 3, Err: wager.ErrUnknownWinner})

	assert.Empty(t, c.got)
	if assert.Len(t, p.got, 1) {
		assert.Equal(t, events.SettlementFailed, p.got[0].Event().Status)
	}
}
