package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/curator/internal/models"
)

var _ list.Item = taskItem{}

// taskItem wraps [models.Task] to implement [list.Item].
type taskItem struct {
	task *models.Task
}

func (i taskItem) FilterValue() string {
	return strings.Join([]string{string(i.task.Type), string(i.task.Status), i.task.EntityName, i.task.EntityMBID}, " ")
}

func (i taskItem) Title() string {
	return fmt.Sprintf("#%d %s  %s", i.task.Sequence, i.task.Type, styles.status(i.task.Status).Render(string(i.task.Status)))
}

func (i taskItem) Description() string {
	parts := []string{fmt.Sprintf("priority %d", i.task.Priority)}
	switch {
	case i.task.EntityName != "":
		parts = append(parts, i.task.EntityName)
	case i.task.EntityMBID != "":
		parts = append(parts, i.task.EntityMBID)
	}
	if i.task.ErrorMessage != "" {
		parts = append(parts, i.task.ErrorMessage)
	} else if msg, ok := i.task.ResultMetadata["message"].(string); ok {
		parts = append(parts, msg)
	}
	return strings.Join(parts, " • ")
}
