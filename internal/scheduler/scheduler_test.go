package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"rss_collector/internal/domain"
	"rss_collector/internal/scheduler/mocks"
)

type SchedulerSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	collector *mocks.MockCollector
	notifier  *mocks.MockNotifier
	lock      *mocks.MockLocker
	refresher *mocks.MockCacheRefresher
	scheduler *Scheduler
	seoul     *time.Location
}

func (s *SchedulerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.collector = mocks.NewMockCollector(s.ctrl)
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.lock = mocks.NewMockLocker(s.ctrl)
	s.refresher = mocks.NewMockCacheRefresher(s.ctrl)

	seoul, err := time.LoadLocation("Asia/Seoul")
	s.Require().NoError(err)
	s.seoul = seoul

	sch, err := New(Config{
		Cron:         "0 6 * * *",
		CacheRefresh: "@every 10m",
		Location:     seoul,
		LockTTL:      9 * time.Minute,
	}, s.collector, s.notifier, s.lock, s.refresher, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)
	s.scheduler = sch
}

func (s *SchedulerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) TestTrigger_Success() {
	report := &domain.RunReport{TotalFeeds: 2, SavedArticles: 3}

	gomock.InOrder(
		s.lock.EXPECT().Acquire(gomock.Any(), 9*time.Minute).Return("token-1", nil),
		s.collector.EXPECT().RunCollection(gomock.Any()).Return(report, nil),
		s.notifier.EXPECT().Report(gomock.Any(), report, nil),
		s.lock.EXPECT().Release(gomock.Any(), "token-1").Return(nil),
	)

	got, err := s.scheduler.Trigger(context.Background())
	s.NoError(err)
	s.Same(report, got)
}

func (s *SchedulerSuite) TestTrigger_FatalErrorIsNotified() {
	fatal := errors.New("ping item store: connection refused")

	s.lock.EXPECT().Acquire(gomock.Any(), gomock.Any()).Return("token", nil)
	s.collector.EXPECT().RunCollection(gomock.Any()).Return(nil, fatal)
	s.notifier.EXPECT().Report(gomock.Any(), nil, fatal)
	s.lock.EXPECT().Release(gomock.Any(), "token").Return(nil)

	got, err := s.scheduler.Trigger(context.Background())
	s.ErrorIs(err, fatal)
	s.Nil(got)
}

func (s *SchedulerSuite) TestTrigger_RejectedWhenLeaseHeld() {
	held := fmt.Errorf("lock is held by another run: %w", domain.ErrRunInProgress)
	s.lock.EXPECT().Acquire(gomock.Any(), gomock.Any()).Return("", held)

	got, err := s.scheduler.Trigger(context.Background())
	s.ErrorIs(err, domain.ErrRunInProgress)
	s.Nil(got)
}

func (s *SchedulerSuite) TestTrigger_LockBackendDownStillRuns() {
	report := &domain.RunReport{}

	s.lock.EXPECT().Acquire(gomock.Any(), gomock.Any()).Return("", errors.New("dial tcp: connection refused"))
	s.collector.EXPECT().RunCollection(gomock.Any()).Return(report, nil)
	s.notifier.EXPECT().Report(gomock.Any(), report, nil)

	_, err := s.scheduler.Trigger(context.Background())
	s.NoError(err)
}

func (s *SchedulerSuite) TestTrigger_RejectedWhileRunningInProcess() {
	started := make(chan struct{})
	finish := make(chan struct{})
	report := &domain.RunReport{}

	s.lock.EXPECT().Acquire(gomock.Any(), gomock.Any()).Return("token", nil)
	s.collector.EXPECT().RunCollection(gomock.Any()).DoAndReturn(func(context.Context) (*domain.RunReport, error) {
		close(started)
		<-finish
		return report, nil
	})
	s.notifier.EXPECT().Report(gomock.Any(), report, nil)
	s.lock.EXPECT().Release(gomock.Any(), "token").Return(nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.scheduler.Trigger(context.Background())
		done <- err
	}()
	<-started

	_, err := s.scheduler.Trigger(context.Background())
	s.ErrorIs(err, domain.ErrRunInProgress)

	close(finish)
	s.NoError(<-done)
}

func (s *SchedulerSuite) TestTrigger_DetachedFromCallerCancellation() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.lock.EXPECT().Acquire(gomock.Any(), gomock.Any()).Return("token", nil)
	s.collector.EXPECT().RunCollection(gomock.Any()).DoAndReturn(func(ctx context.Context) (*domain.RunReport, error) {
		s.NoError(ctx.Err())
		return &domain.RunReport{}, nil
	})
	s.notifier.EXPECT().Report(gomock.Any(), gomock.Any(), nil)
	s.lock.EXPECT().Release(gomock.Any(), "token").Return(nil)

	_, err := s.scheduler.Trigger(ctx)
	s.NoError(err)
}

func (s *SchedulerSuite) TestRunScheduled_SkipsWhenLeaseHeld() {
	s.lock.EXPECT().Acquire(gomock.Any(), gomock.Any()).Return("", domain.ErrRunInProgress)

	s.NotPanics(s.scheduler.runScheduled)
}

func (s *SchedulerSuite) TestRunScheduled_RunsOnce() {
	report := &domain.RunReport{}
	s.lock.EXPECT().Acquire(gomock.Any(), gomock.Any()).Return("token", nil)
	s.collector.EXPECT().RunCollection(gomock.Any()).Return(report, nil).Times(1)
	s.notifier.EXPECT().Report(gomock.Any(), report, nil).Times(1)
	s.lock.EXPECT().Release(gomock.Any(), "token").Return(errors.New("gone"))

	s.scheduler.runScheduled()
}

func (s *SchedulerSuite) TestRefreshCache() {
	s.refresher.EXPECT().Refresh(gomock.Any()).Return(errors.New("redis down"))
	s.NotPanics(s.scheduler.refreshCache)
}

func (s *SchedulerSuite) TestNext_DailyAtSixSeoul() {
	s.scheduler.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.NoError(s.scheduler.Stop(ctx))
	}()

	next := s.scheduler.Next().In(s.seoul)
	s.Equal(6, next.Hour())
	s.Equal(0, next.Minute())
	s.True(next.After(time.Now()))
	s.Len(s.scheduler.cron.Entries(), 2)
}

func (s *SchedulerSuite) TestNew_InvalidCron() {
	_, err := New(Config{Cron: "not a cron"}, s.collector, s.notifier, nil, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Error(err)
}

func (s *SchedulerSuite) TestTrigger_WithoutLock() {
	sch, err := New(Config{Cron: "0 6 * * *"}, s.collector, s.notifier, nil, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)

	report := &domain.RunReport{}
	s.collector.EXPECT().RunCollection(gomock.Any()).Return(report, nil)
	s.notifier.EXPECT().Report(gomock.Any(), report, nil)

	_, err = sch.Trigger(context.Background())
	s.NoError(err)
}
