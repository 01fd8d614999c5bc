package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// 模型可以请求的工具名称。
const (
	ToolSetReminder      = "setReminderTool"
	ToolClearChatHistory = "clearChatHistoryTool"
)

// ToolRequest 模型请求调用的工具，由上层服务负责执行。
type ToolRequest struct {
	Ref   string          `json:"ref,omitempty"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ReminderArgs 是 setReminderTool 的参数。
type ReminderArgs struct {
	Symptom string `json:"symptom"`
	Advice  string `json:"advice"`
}

// ReminderArgs decodes the arguments of a setReminderTool request.
func (r ToolRequest) ReminderArgs() (ReminderArgs, error) {
	if r.Name != ToolSetReminder {
		return ReminderArgs{}, fmt.Errorf("%w: %s is not %s", ErrInvalidInput, r.Name, ToolSetReminder)
	}
	var args ReminderArgs
	if err := json.Unmarshal(r.Input, &args); err != nil {
		return ReminderArgs{}, fmt.Errorf("%w: decode reminder args: %v", ErrInvalidInput, err)
	}
	args.Symptom = strings.TrimSpace(args.Symptom)
	args.Advice = strings.TrimSpace(args.Advice)
	if args.Symptom == "" || args.Advice == "" {
		return ReminderArgs{}, fmt.Errorf("%w: reminder needs symptom and advice", ErrInvalidInput)
	}
	return args, nil
}

// companionTools 绑定到对话模型的工具声明。
func companionTools() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: ToolSetReminder,
			Desc: "Sets a daily reminder for the user about a symptom they mentioned, with a short piece of advice.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"symptom": {Type: schema.String, Desc: "The symptom the reminder is about, e.g. headache.", Required: true},
				"advice":  {Type: schema.String, Desc: "The advice to show in the reminder, e.g. drink plenty of water.", Required: true},
			}),
		},
		{
			Name:        ToolClearChatHistory,
			Desc:        "Clears the conversation history when the user asks to clear the chat, delete the history or start over.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
	}
}

// toolRequestsFrom 提取模型消息中的已知工具调用，未知工具会被丢弃。
func toolRequestsFrom(msg *schema.Message) (requests []ToolRequest, dropped []string) {
	if msg == nil {
		return nil, nil
	}
	for _, call := range msg.ToolCalls {
		name := strings.TrimSpace(call.Function.Name)
		if name != ToolSetReminder && name != ToolClearChatHistory {
			dropped = append(dropped, name)
			continue
		}
		input := json.RawMessage(strings.TrimSpace(call.Function.Arguments))
		if len(input) == 0 || !json.Valid(input) {
			input = json.RawMessage("{}")
		}
		requests = append(requests, ToolRequest{Ref: call.ID, Name: name, Input: input})
	}
	return requests, dropped
}
