// Package scheduler runs cron-scheduled sends: each configured job fires a
// text message into its thread whenever its cron expression is due.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/openig/igbot/pkg/config"
	"github.com/openig/igbot/pkg/domain"
	"github.com/openig/igbot/pkg/domain/message"
	"github.com/openig/igbot/pkg/logger"
)

// Sender is the slice of the client facade the scheduler needs.
type Sender interface {
	SendText(ctx context.Context, threadID domain.EntityID, text string) (*message.Message, error)
}

// Scheduler evaluates job cron expressions once per minute.
type Scheduler struct {
	bus    domain.EventBus
	sender Sender
	gron   *gronx.Gronx
	jobs   []config.JobConfig

	interval time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	stopped sync.WaitGroup
}

// New creates a scheduler over the configured jobs. Jobs with invalid cron
// expressions are dropped at construction with a log line.
func New(bus domain.EventBus, sender Sender, jobs []config.JobConfig) *Scheduler {
	s := &Scheduler{
		bus:      bus,
		sender:   sender,
		gron:     gronx.New(),
		interval: time.Minute,
	}
	for _, job := range jobs {
		if !s.gron.IsValid(job.Cron) {
			logger.WarnCF("scheduler", "Dropping job with invalid cron", map[string]interface{}{
				"job":  job.Name,
				"cron": job.Cron,
			})
			continue
		}
		s.jobs = append(s.jobs, job)
	}
	return s
}

// Jobs returns the accepted jobs.
func (s *Scheduler) Jobs() []config.JobConfig { return s.jobs }

// Start launches the tick loop. No-op when no jobs survived validation.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil || len(s.jobs) == 0 {
		return
	}
	s.stop = make(chan struct{})
	s.stopped.Add(1)
	go s.run(s.stop)

	logger.InfoCF("scheduler", "Scheduler started", map[string]interface{}{
		"jobs": len(s.jobs),
	})
}

// Stop halts the tick loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	s.stopped.Wait()
}

func (s *Scheduler) run(stop chan struct{}) {
	defer s.stopped.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.tick(now)
		case <-stop:
			return
		}
	}
}

// tick fires every job whose cron expression is due at now.
func (s *Scheduler) tick(now time.Time) {
	for _, job := range s.jobs {
		due, err := s.gron.IsDue(job.Cron, now)
		if err != nil || !due {
			continue
		}
		s.fire(job)
	}
}

func (s *Scheduler) fire(job config.JobConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	chatID := domain.EntityID(job.ChatID)
	msg, err := s.sender.SendText(ctx, chatID, job.Text)
	if err != nil {
		logger.ErrorCF("scheduler", "Scheduled send failed", map[string]interface{}{
			"job":   job.Name,
			"chat":  job.ChatID,
			"error": err.Error(),
		})
		return
	}

	s.bus.Publish(domain.NewEvent(domain.EventScheduledSend, chatID, map[string]interface{}{
		"job":  job.Name,
		"item": msg.ID().String(),
	}))
	logger.InfoCF("scheduler", "Scheduled send delivered", map[string]interface{}{
		"job":  job.Name,
		"chat": job.ChatID,
	})
}
