package event

import (
	"testing"

	"github.com/dshills/delegate/internal/agent"
)

func TestTopic_Matches(t *testing.T) {
	tests := []struct {
		topic   Topic
		pattern Topic
		want    bool
	}{
		{"task.running", "task.running", true},
		{"task.running", "task.completed", false},
		{"task.running", "task.*", true},
		{"task.running", "*.running", true},
		{"task.running", "*", false},
		{"task.running", "**", true},
		{"task.running", "task.**", true},
		{"task", "task.**", true},
		{"task.a.b", "task.*", false},
		{"task.a.b", "task.**.b", true},
		{"task.a.b", "**.b", true},
		{"task", "task.*", false},
		{"other.running", "task.*", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.topic)+"~"+string(tt.pattern), func(t *testing.T) {
			if got := tt.topic.Matches(tt.pattern); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTopic_IsValid(t *testing.T) {
	tests := []struct {
		topic Topic
		want  bool
	}{
		{"task.running", true},
		{"task", true},
		{"", false},
		{".task", false},
		{"task.", false},
		{"task..running", false},
	}

	for _, tt := range tests {
		if got := tt.topic.IsValid(); got != tt.want {
			t.Errorf("Topic(%q).IsValid() = %v, want %v", tt.topic, got, tt.want)
		}
	}
}

func TestTaskTopic(t *testing.T) {
	for _, status := range agent.AllStatuses {
		topic := TaskTopic(status)
		if topic != Topic("task."+string(status)) {
			t.Errorf("TaskTopic(%s) = %q", status, topic)
		}
		if !topic.Matches(TopicAllTasks) {
			t.Errorf("TaskTopic(%s) does not match %q", status, TopicAllTasks)
		}
	}
}
