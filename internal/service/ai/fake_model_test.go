package ai

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/healthwise/companion/internal/model/speech"
)

// fakeModel 按顺序返回预设回复，并记录收到的消息。
type fakeModel struct {
	mu      sync.Mutex
	replies []*schema.Message
	errs    []error
	chunks  []string
	tools   []*schema.ToolInfo
	inputs  [][]*schema.Message
}

func (m *fakeModel) next(input []*schema.Message) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, input)
	idx := len(m.inputs) - 1
	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if len(m.replies) == 0 {
		return nil, errors.New("no reply configured")
	}
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	return m.replies[idx], nil
}

func (m *fakeModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return m.next(input)
}

func (m *fakeModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if len(m.chunks) > 0 {
		m.mu.Lock()
		m.inputs = append(m.inputs, input)
		m.mu.Unlock()
		parts := make([]*schema.Message, 0, len(m.chunks))
		for _, c := range m.chunks {
			parts = append(parts, schema.AssistantMessage(c, nil))
		}
		return schema.StreamReaderFromArray(parts), nil
	}
	msg, err := m.next(input)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *fakeModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.tools = tools
	return m, nil
}

func (m *fakeModel) lastInput() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.inputs) == 0 {
		return nil
	}
	return m.inputs[len(m.inputs)-1]
}

func (m *fakeModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

func reply(text string) *schema.Message {
	return schema.AssistantMessage(text, nil)
}

func toolReply(text string, calls ...schema.ToolCall) *schema.Message {
	return schema.AssistantMessage(text, calls)
}

func toolCall(id, name, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Function: schema.FunctionCall{Name: name, Arguments: args}}
}

type fakeSynth struct {
	err   error
	texts []string
}

func (s *fakeSynth) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	s.texts = append(s.texts, req.Text)
	if s.err != nil {
		return nil, s.err
	}
	return &speech.TTSResponse{SessionID: req.SessionID, AudioData: []byte(strings.ToUpper(req.Text)), Format: "wav"}, nil
}
