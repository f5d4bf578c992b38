package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"rss_collector/internal/domain"
)

// Slack posts run summaries to an incoming webhook. Delivery failures are
// logged and swallowed: a notification never changes a run's outcome.
type Slack struct {
	webhookURL string
	client     *http.Client
	location   *time.Location
	now        func() time.Time
	logger     *slog.Logger
}

type Config struct {
	WebhookURL string
	Timeout    time.Duration
	Location   *time.Location
}

func NewSlack(cfg Config, logger *slog.Logger) *Slack {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Slack{
		webhookURL: cfg.WebhookURL,
		client:     &http.Client{Timeout: cfg.Timeout},
		location:   loc,
		now:        time.Now,
		logger:     logger.With("component", "notifier"),
	}
}

// Report sends a success summary when runErr is nil and a failure notice otherwise.
func (s *Slack) Report(ctx context.Context, report *domain.RunReport, runErr error) {
	var text string
	if runErr != nil || report == nil {
		text = s.failureMessage(runErr)
	} else {
		text = s.successMessage(report)
	}
	s.send(ctx, text)
}

func (s *Slack) send(ctx context.Context, text string) {
	if s.webhookURL == "" {
		s.logger.Warn("slack webhook url is not configured, skipping notification")
		return
	}

	err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.client, &slack.WebhookMessage{Text: text})
	if err != nil {
		s.logger.Error("failed to send slack message", "error", err)
		return
	}
	s.logger.Info("slack message sent")
}

func (s *Slack) successMessage(r *domain.RunReport) string {
	var b strings.Builder

	b.WriteString("🤖 **RSS 자동 수집 완료**\n\n")
	b.WriteString("📊 **수집 결과:**\n")
	fmt.Fprintf(&b, "• 전체 피드: %d개\n", r.TotalFeeds)
	fmt.Fprintf(&b, "• 성공한 피드: %d개\n", r.SuccessfulFeeds)
	fmt.Fprintf(&b, "• 실패한 피드: %d개\n", r.FailedFeeds)
	if r.InactiveFeeds > 0 {
		fmt.Fprintf(&b, "• 비활성 피드: %d개\n", r.InactiveFeeds)
	}
	if r.UnvisitedFeeds > 0 {
		fmt.Fprintf(&b, "• 미처리 피드: %d개\n", r.UnvisitedFeeds)
	}
	fmt.Fprintf(&b, "• 수집된 전체 글: %d개\n", r.TotalArticles)
	fmt.Fprintf(&b, "• 키워드 필터링된 글: %d개\n", r.FilteredArticles)
	fmt.Fprintf(&b, "• 새로 저장된 글: %d개\n", r.SavedArticles)
	fmt.Fprintf(&b, "• 중복으로 건너뛴 글: %d개\n", r.SkippedArticles)
	if r.DroppedArticles > 0 {
		fmt.Fprintf(&b, "• 키워드 미일치로 제외된 글: %d개\n", r.DroppedArticles)
	}
	if r.ItemErrors > 0 {
		fmt.Fprintf(&b, "• 저장 오류: %d개\n", r.ItemErrors)
	}

	fmt.Fprintf(&b, "\n⏱️ **소요 시간:** %s초\n", formatSeconds(r.DurationSeconds))
	fmt.Fprintf(&b, "📅 **수집 시간:** %s\n", formatKoreanTime(s.now().In(s.location)))

	if len(r.Failures) > 0 {
		b.WriteString("\n⚠️ **실패한 피드 목록:**\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "• %s: %s\n", f.Source, f.Reason)
		}
	}

	if r.Message != "" {
		b.WriteString("\n")
		b.WriteString(r.Message)
	}
	return b.String()
}

func (s *Slack) failureMessage(err error) string {
	reason := "알 수 없는 오류"
	if err != nil {
		reason = err.Error()
	}

	var b strings.Builder
	b.WriteString("🚨 **RSS 자동 수집 실패**\n\n")
	fmt.Fprintf(&b, "❌ **오류 내용:** %s\n", reason)
	fmt.Fprintf(&b, "📅 **실패 시간:** %s\n\n", formatKoreanTime(s.now().In(s.location)))
	b.WriteString("관리자가 확인이 필요합니다.")
	return b.String()
}

// formatKoreanTime renders t the way the ko-KR locale does, e.g. "2025. 7. 28. 오후 3:04:05".
func formatKoreanTime(t time.Time) string {
	meridiem := "오전"
	if t.Hour() >= 12 {
		meridiem = "오후"
	}
	hour := t.Hour() % 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%d. %d. %d. %s %d:%02d:%02d",
		t.Year(), int(t.Month()), t.Day(), meridiem, hour, t.Minute(), t.Second())
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
