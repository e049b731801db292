package domain

import "testing"

func TestBuildMessages(t *testing.T) {
	history := []Turn{{User: "hi", Assistant: "hello"}}
	messages := BuildMessages("be brief", history, "how are you")

	want := []ChatMessage{
		{Role: SystemRole, Content: "be brief"},
		{Role: UserRole, Content: "hi"},
		{Role: AssistantRole, Content: "hello"},
		{Role: UserRole, Content: "how are you"},
	}
	if len(messages) != len(want) {
		t.Fatalf("got %d messages, want %d: %+v", len(messages), len(want), messages)
	}
	for i := range want {
		if messages[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, messages[i], want[i])
		}
	}
}

func TestBuildMessagesOmitsEmptyFields(t *testing.T) {
	tests := []struct {
		name    string
		history []Turn
		want    []ChatMessage
	}{
		{
			name:    "missing assistant",
			history: []Turn{{User: "hi"}},
			want: []ChatMessage{
				{Role: SystemRole, Content: "sys"},
				{Role: UserRole, Content: "hi"},
				{Role: UserRole, Content: "next"},
			},
		},
		{
			name:    "missing user",
			history: []Turn{{Assistant: "welcome"}},
			want: []ChatMessage{
				{Role: SystemRole, Content: "sys"},
				{Role: AssistantRole, Content: "welcome"},
				{Role: UserRole, Content: "next"},
			},
		},
		{
			name:    "empty history",
			history: nil,
			want: []ChatMessage{
				{Role: SystemRole, Content: "sys"},
				{Role: UserRole, Content: "next"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages := BuildMessages("sys", tt.history, "next")
			if len(messages) != len(tt.want) {
				t.Fatalf("got %d messages, want %d: %+v", len(messages), len(tt.want), messages)
			}
			for i := range tt.want {
				if messages[i] != tt.want[i] {
					t.Errorf("message %d = %+v, want %+v", i, messages[i], tt.want[i])
				}
			}
		})
	}
}
