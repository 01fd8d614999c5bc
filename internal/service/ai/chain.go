package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/healthwise/companion/internal/model/chat"
)

var (
	// ErrInvalidInput 输入未通过校验。
	ErrInvalidInput = errors.New("invalid input")
	// ErrModelFailure 模型调用失败或返回了无法使用的结果。
	ErrModelFailure = errors.New("model call failed")
)

// UnavailableMessage is the only model error text users ever see.
const UnavailableMessage = "The AI assistant is currently unavailable. Please try again later."

// compileChain 构建 system + history + query 的通用对话链。
func compileChain(ctx context.Context, chatModel model.BaseChatModel, name string) (compose.Runnable[map[string]any, *schema.Message], error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%s: chat model is required", name)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s chain: %w", name, err)
	}
	return runnable, nil
}

// buildHistoryMessages 把最近 limit 条记录转成模型消息。
func buildHistoryMessages(turns []chat.Turn, limit int) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}

	startIdx := 0
	if len(turns) > limit {
		startIdx = len(turns) - limit
	}

	history := make([]*schema.Message, 0, len(turns)-startIdx)
	for _, turn := range turns[startIdx:] {
		text := renderTurn(turn)
		if text == "" {
			continue
		}
		switch turn.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(text))
		case chat.SenderAssistant:
			history = append(history, schema.AssistantMessage(text, nil))
		}
	}
	return history
}

func renderTurn(turn chat.Turn) string {
	text := strings.TrimSpace(turn.Text)
	if turn.Analysis == nil {
		return text
	}

	var b strings.Builder
	if text != "" {
		b.WriteString(text)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Symptom analysis for %s.", turn.Analysis.Symptom)
	if len(turn.Analysis.PossibleCauses) > 0 {
		fmt.Fprintf(&b, " Possible causes: %s.", strings.Join(turn.Analysis.PossibleCauses, ", "))
	}
	if turn.Analysis.Advice != "" {
		fmt.Fprintf(&b, " Advice: %s", turn.Analysis.Advice)
	}
	return b.String()
}
