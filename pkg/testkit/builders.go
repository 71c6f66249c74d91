package testkit

import (
	"time"

	"agentrunner/pkg/conversation"
)

// RunWithStatus returns a run fixture in the given state.
func RunWithStatus(id string, status conversation.RunStatus) conversation.Run {
	return conversation.Run{ID: id, Status: status}
}

// RequiresAction returns a run paused on the given tool calls.
func RequiresAction(id string, calls ...conversation.ToolCall) conversation.Run {
	return conversation.Run{
		ID:             id,
		Status:         conversation.StatusRequiresAction,
		RequiredAction: &conversation.RequiredAction{ToolCalls: calls},
	}
}

// FailedRun returns a failed run carrying the remote error.
func FailedRun(id, code, message string) conversation.Run {
	return conversation.Run{
		ID:        id,
		Status:    conversation.StatusFailed,
		LastError: &conversation.RunError{Code: code, Message: message},
	}
}

// FunctionCall builds a function tool call. args may be a map or JSON text.
func FunctionCall(id, name string, args any) conversation.ToolCall {
	return conversation.ToolCall{ID: id, Type: conversation.ToolCallTypeFunction, Name: name, Arguments: args}
}

// MessageBuilder assembles thread message fixtures.
type MessageBuilder struct {
	msg conversation.Message
}

// NewAssistantMessage starts an assistant message created at the given time.
func NewAssistantMessage(id string, createdAt time.Time) *MessageBuilder {
	return &MessageBuilder{msg: conversation.Message{ID: id, Role: conversation.RoleAssistant, CreatedAt: createdAt}}
}

// NewUserMessage starts a user message created at the given time.
func NewUserMessage(id string, createdAt time.Time) *MessageBuilder {
	return &MessageBuilder{msg: conversation.Message{ID: id, Role: conversation.RoleUser, CreatedAt: createdAt}}
}

// WithText appends a text segment.
func (mb *MessageBuilder) WithText(text string) *MessageBuilder {
	mb.msg.Content = append(mb.msg.Content, conversation.ContentSegment{Type: conversation.ContentTypeText, Text: text})
	return mb
}

// WithSegment appends a segment of an arbitrary type.
func (mb *MessageBuilder) WithSegment(kind, text string) *MessageBuilder {
	mb.msg.Content = append(mb.msg.Content, conversation.ContentSegment{Type: kind, Text: text})
	return mb
}

// Build returns the message.
func (mb *MessageBuilder) Build() conversation.Message {
	return mb.msg
}

// AssistantReply is shorthand for a single-segment assistant message.
func AssistantReply(id, text string, createdAt time.Time) conversation.Message {
	return NewAssistantMessage(id, createdAt).WithText(text).Build()
}
