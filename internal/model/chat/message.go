package chat

import (
	"time"

	"github.com/healthwise/companion/internal/model/health"
)

// 消息发送方。
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// 消息类型，与模型输出的 type 字段一致。
const (
	TypeConversational  = "conversational"
	TypeSymptomAnalysis = "symptom_analysis"
)

// Message persists individual turns of a companion conversation.
type Message struct {
	ID        string                  `json:"id"`
	SessionID string                  `json:"sessionId"`
	Sender    string                  `json:"sender"`
	Type      string                  `json:"type"`
	Text      string                  `json:"text"`
	Analysis  *health.SymptomAnalysis `json:"analysis,omitempty"`
	CreatedAt time.Time               `json:"createdAt"`
}

// Turn 是传给对话流程的一条历史记录。
type Turn struct {
	Sender   string                  `json:"sender"`
	Type     string                  `json:"type"`
	Text     string                  `json:"text"`
	Analysis *health.SymptomAnalysis `json:"analysis,omitempty"`
}

// AsTurn 把持久化的消息转换为流程输入。
func (m Message) AsTurn() Turn {
	return Turn{Sender: m.Sender, Type: m.Type, Text: m.Text, Analysis: m.Analysis}
}

// Turns converts a transcript into flow history.
func Turns(messages []Message) []Turn {
	if len(messages) == 0 {
		return nil
	}
	turns := make([]Turn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, msg.AsTurn())
	}
	return turns
}
