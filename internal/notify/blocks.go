package notify

import (
	"fmt"
	"strings"

	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/pulse/internal/domain"
)

const dueDateLayout = "02/01/2006"

// BuildOverdueBlocks builds Slack Block Kit blocks listing overdue tasks:
// a header section, one section per task and a "+N more" context line when
// total exceeds the listed tasks.
func BuildOverdueBlocks(scope string, tasks []*domain.Task, total int) []slacklib.Block {
	header := fmt.Sprintf("*%d tarefa(s) atrasada(s)* em _%s_", total, scope)
	blocks := []slacklib.Block{
		slacklib.NewSectionBlock(
			slacklib.NewTextBlockObject(slacklib.MarkdownType, header, false, false),
			nil,
			nil,
		),
		slacklib.NewDividerBlock(),
	}

	for _, t := range tasks {
		blocks = append(blocks, slacklib.NewSectionBlock(
			slacklib.NewTextBlockObject(slacklib.MarkdownType, taskLine(t), false, false),
			nil,
			nil,
		))
	}

	if extra := total - len(tasks); extra > 0 {
		blocks = append(blocks, slacklib.NewContextBlock("overdue_more",
			slacklib.NewTextBlockObject(slacklib.PlainTextType, fmt.Sprintf("+%d mais", extra), false, false),
		))
	}

	return blocks
}

// overdueText is the plain fallback shown in notifications.
func overdueText(scope string, total int) string {
	return fmt.Sprintf("%d tarefa(s) atrasada(s) em %s", total, scope)
}

func taskLine(t *domain.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*", t.Title)
	if t.ProjectName != "" {
		fmt.Fprintf(&b, " · %s", t.ProjectName)
	}
	if t.DueDate != nil {
		fmt.Fprintf(&b, "\nVencimento: %s", t.DueDate.Format(dueDateLayout))
	}
	fmt.Fprintf(&b, " · Prioridade: `%s`", t.Priority.Label())
	return b.String()
}
