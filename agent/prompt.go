package agent

import (
	"fmt"
	"sort"
	"strings"
)

func systemPrompt(cfg Config) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s.\n", cfg.Role)
	if cfg.Backstory != "" {
		sb.WriteString(strings.TrimSpace(cfg.Backstory))
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Your personal goal is: %s\n", strings.TrimSpace(cfg.Goal))
	sb.WriteString("Use the available tools when they help. When you have the result, reply with the final answer only.")
	return sb.String()
}

func taskPrompt(task Task, inputs map[string]string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Current task: %s\n\n", strings.TrimSpace(task.Description))
	fmt.Fprintf(&sb, "Expected output: %s\n", strings.TrimSpace(task.ExpectedOutput))
	if task.OutputLocator != "" {
		fmt.Fprintf(&sb, "The result is saved as %s.\n", task.OutputLocator)
	}

	if len(inputs) > 0 {
		keys := make([]string, 0, len(inputs))
		for k := range inputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\nInputs:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %s\n", k, inputs[k])
		}
	}

	for _, a := range task.Context {
		switch {
		case a.Missing:
			fmt.Fprintf(&sb, "\nContext from %s: not available, the task producing %s failed.\n", a.Task, a.Locator)
		case a.Locator != "":
			fmt.Fprintf(&sb, "\nContext from %s (%s):\n%s\n", a.Task, a.Locator, a.Content)
		default:
			fmt.Fprintf(&sb, "\nContext from %s:\n%s\n", a.Task, a.Content)
		}
	}
	return sb.String()
}
