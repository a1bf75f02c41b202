package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

type SlackConfig struct {
	Token   string
	Channel string
	// APIURL overrides the Slack API base URL.
	APIURL string
}

func (cfg *SlackConfig) Validate() error {
	if cfg.Token == "" {
		return errors.New("slack token is required")
	}
	if cfg.Channel == "" {
		return errors.New("slack channel is required")
	}
	return nil
}

// SlackNotifier posts a short summary of each report to a channel.
type SlackNotifier struct {
	api     *slack.Client
	channel string
}

func NewSlackNotifier(cfg SlackConfig) (*SlackNotifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return &SlackNotifier{api: slack.New(cfg.Token, opts...), channel: cfg.Channel}, nil
}

func (n *SlackNotifier) Notify(ctx context.Context, r DailyReport) error {
	_, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(SummaryText(r), false))
	if err != nil {
		return fmt.Errorf("failed to post to slack: %w", err)
	}
	return nil
}

// SummaryText is the Slack mrkdwn summary of a report.
func SummaryText(r DailyReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*T3 daily report for %s*\n", r.Date.Format(time.DateOnly))
	fmt.Fprintf(&b, "Transactions: %d\nRevenue: %s\n", r.NumberOfSales, Pounds(r.TotalRevenue))
	for _, f := range r.RevenuePerTruck {
		fmt.Fprintf(&b, "• %s: %d sales, %s\n", f.TruckName, f.Sales, Pounds(f.Revenue))
	}
	return b.String()
}
