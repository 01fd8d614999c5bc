package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthwise/companion/internal/analysis/symptom"
	"github.com/healthwise/companion/internal/model/chat"
	"github.com/healthwise/companion/internal/service/triage"
)

type fixedClassifier struct{ kind symptom.Kind }

func (c fixedClassifier) Classify(ctx context.Context, history []chat.Turn, message string) triage.Result {
	return triage.Result{Decision: symptom.Decision{Kind: c.kind}, Source: triage.SourceModel}
}

func newCompanion(t *testing.T, chatModel *fakeModel, symptomModel *fakeModel, classifier Classifier, synth Synthesizer) *CompanionFlow {
	t.Helper()
	ctx := context.Background()
	var symptoms *SymptomFlow
	if symptomModel != nil {
		var err error
		symptoms, err = NewSymptomFlow(ctx, symptomModel, nil)
		require.NoError(t, err)
	}
	flow, err := NewCompanionFlow(ctx, chatModel, classifier, symptoms, synth, CompanionConfig{HistoryLimit: 2}, nil)
	require.NoError(t, err)
	return flow
}

func TestCompanionConversationalPlainText(t *testing.T) {
	m := &fakeModel{replies: []*schema.Message{reply("Hi! How can I help you today?")}}
	flow := newCompanion(t, m, nil, fixedClassifier{symptom.KindConversational}, nil)

	out, err := flow.Run(context.Background(), CompanionInput{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, chat.TypeConversational, out.Type)
	assert.Equal(t, "Hi! How can I help you today?", out.TextResponse)
	assert.Empty(t, out.ToolRequests)
	assert.Empty(t, out.AudioData)
	require.Len(t, m.tools, 2)
}

func TestCompanionAcceptsJSONTextResponse(t *testing.T) {
	m := &fakeModel{replies: []*schema.Message{reply("```json\n{\"textResponse\": \"Drink some water.\"}\n```")}}
	flow := newCompanion(t, m, nil, fixedClassifier{symptom.KindConversational}, nil)

	out, err := flow.Run(context.Background(), CompanionInput{Message: "tips?"})
	require.NoError(t, err)
	assert.Equal(t, "Drink some water.", out.TextResponse)
}

func TestCompanionDefaultsEmptyText(t *testing.T) {
	m := &fakeModel{replies: []*schema.Message{toolReply("", toolCall("call-1", ToolClearChatHistory, ""))}}
	flow := newCompanion(t, m, nil, fixedClassifier{symptom.KindConversational}, nil)

	out, err := flow.Run(context.Background(), CompanionInput{Message: "start over"})
	require.NoError(t, err)
	assert.Equal(t, DefaultResponse, out.TextResponse)
	require.Len(t, out.ToolRequests, 1)
	assert.Equal(t, ToolClearChatHistory, out.ToolRequests[0].Name)
	assert.JSONEq(t, `{}`, string(out.ToolRequests[0].Input))
}

func TestCompanionReturnsReminderToolRequest(t *testing.T) {
	m := &fakeModel{replies: []*schema.Message{toolReply(
		"That sounds uncomfortable. I can set a daily reminder for you to drink plenty of water.",
		toolCall("call-1", ToolSetReminder, `{"symptom":"headache","advice":"drink plenty of water"}`),
		toolCall("call-2", "bookDoctor", `{}`),
	)}}
	flow := newCompanion(t, m, nil, fixedClassifier{symptom.KindConversational}, nil)

	out, err := flow.Run(context.Background(), CompanionInput{Message: "I keep getting headaches"})
	require.NoError(t, err)
	require.Len(t, out.ToolRequests, 1)
	args, err := out.ToolRequests[0].ReminderArgs()
	require.NoError(t, err)
	assert.Equal(t, "headache", args.Symptom)
	assert.Equal(t, "drink plenty of water", args.Advice)
}

func TestCompanionSymptomBranch(t *testing.T) {
	chatModel := &fakeModel{replies: []*schema.Message{reply("unused")}}
	symptomModel := &fakeModel{replies: []*schema.Message{reply(`{"symptom":"Headache","possible_causes":["dehydration","stress","Stress"],"advice":"Rest and drink water."}`)}}
	flow := newCompanion(t, chatModel, symptomModel, fixedClassifier{symptom.KindSymptomAnalysis}, nil)

	out, err := flow.Run(context.Background(), CompanionInput{Message: "I have a pounding headache"})
	require.NoError(t, err)
	assert.Equal(t, chat.TypeSymptomAnalysis, out.Type)
	require.NotNil(t, out.Analysis)
	assert.Equal(t, []string{"dehydration", "stress"}, out.Analysis.PossibleCauses)
	assert.Contains(t, out.TextResponse, "Rest and drink water.")
	assert.Equal(t, 0, chatModel.callCount())

	require.Len(t, out.ToolRequests, 1)
	args, err := out.ToolRequests[0].ReminderArgs()
	require.NoError(t, err)
	assert.Equal(t, "headache", args.Symptom)
	assert.Equal(t, "Rest and drink water.", args.Advice)
}

func TestCompanionSymptomBranchUsesSuggestedAdvice(t *testing.T) {
	chatModel := &fakeModel{}
	symptomModel := &fakeModel{replies: []*schema.Message{reply(`{"symptom":"Headache","possible_causes":["dehydration"],"advice":"See a doctor if it lasts more than three days."}`)}}
	flow := newCompanion(t, chatModel, symptomModel, nil, nil)

	out, err := flow.Run(context.Background(), CompanionInput{Message: "I have a headache since yesterday"})
	require.NoError(t, err)
	assert.Equal(t, chat.TypeSymptomAnalysis, out.Type)
	assert.Equal(t, 0, chatModel.callCount())

	require.Len(t, out.ToolRequests, 1)
	assert.Equal(t, ToolSetReminder, out.ToolRequests[0].Name)
	args, err := out.ToolRequests[0].ReminderArgs()
	require.NoError(t, err)
	assert.Equal(t, "headache", args.Symptom)
	assert.Equal(t, "Drink plenty of water and rest in a quiet, dark room.", args.Advice)
}

func TestCompanionSymptomFailureFallsBackToConversation(t *testing.T) {
	chatModel := &fakeModel{replies: []*schema.Message{reply("I'm sorry you're not feeling well.")}}
	symptomModel := &fakeModel{replies: []*schema.Message{reply("I cannot help with that")}}
	flow := newCompanion(t, chatModel, symptomModel, fixedClassifier{symptom.KindSymptomAnalysis}, nil)

	out, err := flow.Run(context.Background(), CompanionInput{Message: "I feel sick"})
	require.NoError(t, err)
	assert.Equal(t, chat.TypeConversational, out.Type)
	assert.Nil(t, out.Analysis)
	assert.Equal(t, "I'm sorry you're not feeling well.", out.TextResponse)
}

func TestCompanionAudioIsBestEffort(t *testing.T) {
	m := &fakeModel{replies: []*schema.Message{reply("Stay hydrated.")}}

	ok := &fakeSynth{}
	out, err := newCompanion(t, m, nil, fixedClassifier{symptom.KindConversational}, ok).Run(context.Background(), CompanionInput{Message: "hey"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.AudioData, "data:audio/wav;base64,"))
	assert.Equal(t, []string{"Stay hydrated."}, ok.texts)

	// 失败次数由语音服务自身统计，这里不再重复计数
	before := speechFailureCount(t)
	failing := &fakeSynth{err: errors.New("tts down")}
	out, err = newCompanion(t, m, nil, fixedClassifier{symptom.KindConversational}, failing).Run(context.Background(), CompanionInput{Message: "hey"})
	require.NoError(t, err)
	assert.Empty(t, out.AudioData)
	assert.Equal(t, "Stay hydrated.", out.TextResponse)
	assert.Equal(t, before, speechFailureCount(t))
}

func speechFailureCount(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "healthwise_speech_failures_total" && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestCompanionModelErrorIsWrapped(t *testing.T) {
	m := &fakeModel{errs: []error{errors.New("quota exceeded")}}
	flow := newCompanion(t, m, nil, fixedClassifier{symptom.KindConversational}, nil)

	_, err := flow.Run(context.Background(), CompanionInput{Message: "hello"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelFailure))
}

func TestCompanionRejectsBlankMessage(t *testing.T) {
	flow := newCompanion(t, &fakeModel{replies: []*schema.Message{reply("x")}}, nil, nil, nil)
	_, err := flow.Run(context.Background(), CompanionInput{Message: "   "})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestCompanionLimitsHistory(t *testing.T) {
	m := &fakeModel{replies: []*schema.Message{reply("ok")}}
	flow := newCompanion(t, m, nil, fixedClassifier{symptom.KindConversational}, nil)

	history := []chat.Turn{
		{Sender: chat.SenderUser, Text: "first"},
		{Sender: chat.SenderAssistant, Text: "second"},
		{Sender: chat.SenderUser, Text: "third"},
	}
	_, err := flow.Run(context.Background(), CompanionInput{Message: "fourth", History: history})
	require.NoError(t, err)

	input := m.lastInput()
	// system + 2 history + query
	require.Len(t, input, 4)
	assert.Equal(t, "second", input[1].Content)
	assert.Equal(t, "third", input[2].Content)
	assert.Equal(t, "fourth", input[3].Content)
}

func TestCompanionStreamForwardsDeltas(t *testing.T) {
	m := &fakeModel{chunks: []string{"Take ", "a short ", "walk."}}
	flow := newCompanion(t, m, nil, fixedClassifier{symptom.KindConversational}, nil)

	var deltas []string
	out, err := flow.RunStream(context.Background(), CompanionInput{Message: "ideas?"}, func(d string) { deltas = append(deltas, d) })
	require.NoError(t, err)
	assert.Equal(t, []string{"Take ", "a short ", "walk."}, deltas)
	assert.Equal(t, "Take a short walk.", out.TextResponse)
}

func TestCompanionStreamHoldsBackJSON(t *testing.T) {
	m := &fakeModel{chunks: []string{`{"textResponse": `, `"Rest well."}`}}
	flow := newCompanion(t, m, nil, fixedClassifier{symptom.KindConversational}, nil)

	var deltas []string
	out, err := flow.RunStream(context.Background(), CompanionInput{Message: "tired"}, func(d string) { deltas = append(deltas, d) })
	require.NoError(t, err)
	assert.Empty(t, deltas)
	assert.Equal(t, "Rest well.", out.TextResponse)
}
