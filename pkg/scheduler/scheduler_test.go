package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openig/igbot/pkg/config"
	"github.com/openig/igbot/pkg/domain"
	"github.com/openig/igbot/pkg/domain/message"
	"github.com/openig/igbot/pkg/igclient"
	"github.com/openig/igbot/pkg/infrastructure/eventbus"
)

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) SendText(ctx context.Context, threadID domain.EntityID, text string) (*message.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, threadID.String()+":"+text)
	return message.FromPayload(igclient.ItemPayload{
		ItemID:      "item-1",
		ThreadID:    threadID.String(),
		UserPK:      "1",
		ItemType:    "text",
		Text:        text,
		TimestampUS: time.Now().UnixMicro(),
	}, nil), nil
}

func TestInvalidCronJobsDropped(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()

	s := New(bus, &fakeSender{}, []config.JobConfig{
		{Name: "good", Cron: "* * * * *", ChatID: "t1", Text: "hi"},
		{Name: "bad", Cron: "not a cron", ChatID: "t1", Text: "hi"},
	})

	require.Len(t, s.Jobs(), 1)
	assert.Equal(t, "good", s.Jobs()[0].Name)
}

func TestTickFiresDueJobs(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()

	var fired []domain.Event
	bus.Subscribe(domain.EventScheduledSend, func(ev domain.Event) {
		fired = append(fired, ev)
	})

	sender := &fakeSender{}
	s := New(bus, sender, []config.JobConfig{
		// Every minute: due at any tick.
		{Name: "heartbeat", Cron: "* * * * *", ChatID: "t1", Text: "still here"},
		// Midnight Jan 1st: never due at the reference time below.
		{Name: "newyear", Cron: "0 0 1 1 *", ChatID: "t1", Text: "happy new year"},
	})

	s.tick(time.Date(2026, time.June, 15, 10, 30, 0, 0, time.UTC))

	require.Equal(t, []string{"t1:still here"}, sender.sent)
	require.Len(t, fired, 1)
	assert.Equal(t, domain.EntityID("t1"), fired[0].AggregateID())
}

func TestSendFailureDoesNotStopOtherJobs(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()

	sender := &fakeSender{err: igclient.ErrNotConnected}
	s := New(bus, sender, []config.JobConfig{
		{Name: "a", Cron: "* * * * *", ChatID: "t1", Text: "one"},
		{Name: "b", Cron: "* * * * *", ChatID: "t2", Text: "two"},
	})

	// Both jobs fail; tick must survive.
	s.tick(time.Now())
	assert.Empty(t, sender.sent)
}

func TestStartStopIdempotent(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()

	s := New(bus, &fakeSender{}, []config.JobConfig{
		{Name: "heartbeat", Cron: "* * * * *", ChatID: "t1", Text: "hi"},
	})

	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}

func TestStartWithoutJobsIsNoop(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()

	s := New(bus, &fakeSender{}, nil)
	s.Start()
	s.Stop()
}
