package alertimpl

import (
	"context"

	"github.com/orgball2608/video-distributor/internal/alert"
	"github.com/orgball2608/video-distributor/pkg/config"
	"github.com/orgball2608/video-distributor/pkg/formatter"
	"github.com/slack-go/slack"
	"go.uber.org/fx"
)

type SlackOpts struct {
	fx.In

	Config *config.Config
}

// SlackChannel delivers alerts to the configured slack channel.
type SlackChannel struct {
	api     *slack.Client
	channel string
}

func NewSlackChannel(opts SlackOpts) *SlackChannel {
	return &SlackChannel{
		api:     slack.New(opts.Config.Slack.Token),
		channel: opts.Config.Slack.Channel,
	}
}

var _ alert.Channel = (*SlackChannel)(nil)

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Send(ctx context.Context, severity alert.Severity, message string, alertContext map[string]string) error {
	text := formatter.FormatAlert(severity.String(), message, alertContext)
	_, _, err := s.api.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false))
	return err
}
