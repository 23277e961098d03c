// Package notify posts dashboard digests to Slack.
package notify

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/pulse/internal/domain"
)

// SlackAPI abstracts the subset of the Slack client used by Notifier.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slacklib.MsgOption) (string, string, error)
}

// Notifier posts the overdue list of a dashboard scope to one Slack channel.
// A digest is only posted when the overdue set of that scope changes, so
// repeated refreshes over the same board stay quiet.
type Notifier struct {
	api     SlackAPI
	channel string

	mu   sync.Mutex
	last map[int64]string // scope -> fingerprint of the last posted set
}

func New(api SlackAPI, channel string) *Notifier {
	return &Notifier{
		api:     api,
		channel: channel,
		last:    make(map[int64]string),
	}
}

// NotifyOverdue posts the overdue digest for a scope. projectID 0 is the
// all-projects scope. It reports whether a message was sent. An empty
// overdue set is never posted but clears the remembered state, so the next
// non-empty set is announced again.
func (n *Notifier) NotifyOverdue(ctx context.Context, projectID int64, scope string, overdue []*domain.Task, total int) (bool, error) {
	fp := fingerprint(overdue, total)

	n.mu.Lock()
	if total == 0 {
		delete(n.last, projectID)
		n.mu.Unlock()
		return false, nil
	}
	if n.last[projectID] == fp {
		n.mu.Unlock()
		return false, nil
	}
	n.mu.Unlock()

	blocks := BuildOverdueBlocks(scope, overdue, total)
	_, ts, err := n.api.PostMessageContext(ctx, n.channel,
		slacklib.MsgOptionText(overdueText(scope, total), false),
		slacklib.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return false, fmt.Errorf("notify.Notifier.NotifyOverdue: %w", err)
	}

	n.mu.Lock()
	n.last[projectID] = fp
	n.mu.Unlock()

	log.Debug().Int64("project_id", projectID).Int("overdue", total).Str("ts", ts).Msg("overdue digest posted")
	return true, nil
}

func fingerprint(tasks []*domain.Task, total int) string {
	ids := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	slices.Sort(ids)

	var b strings.Builder
	b.WriteString(strconv.Itoa(total))
	for _, id := range ids {
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(id, 10))
	}
	return b.String()
}
