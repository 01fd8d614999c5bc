package companion

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthwise/companion/internal/model/chat"
	"github.com/healthwise/companion/internal/model/health"
	"github.com/healthwise/companion/internal/repository"
	"github.com/healthwise/companion/internal/service/ai"
	chatsvc "github.com/healthwise/companion/internal/service/chat"
	"github.com/healthwise/companion/internal/service/reminder"
)

type scriptedFlow struct {
	out    *ai.CompanionOutput
	err    error
	inputs []ai.CompanionInput
	deltas []string
}

func (f *scriptedFlow) Run(ctx context.Context, in ai.CompanionInput) (*ai.CompanionOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	copied := *f.out
	return &copied, nil
}

func (f *scriptedFlow) RunStream(ctx context.Context, in ai.CompanionInput, onDelta func(string)) (*ai.CompanionOutput, error) {
	for _, d := range f.deltas {
		onDelta(d)
	}
	return f.Run(ctx, in)
}

type fixture struct {
	svc       *Service
	chats     *chatsvc.Service
	reminders *reminder.Service
	flow      *scriptedFlow
}

func newFixture(out *ai.CompanionOutput) *fixture {
	store := repository.NewMemoryStore()
	chats := chatsvc.NewService(store)
	reminders := reminder.NewService(store, 0, nil)
	flow := &scriptedFlow{out: out}
	return &fixture{svc: NewService(chats, reminders, flow, nil), chats: chats, reminders: reminders, flow: flow}
}

func TestTurnPersistsBothMessages(t *testing.T) {
	f := newFixture(&ai.CompanionOutput{Type: chat.TypeConversational, TextResponse: "Hello! How are you feeling?"})
	ctx := context.Background()

	res, err := f.svc.Turn(ctx, "u-1", "", "hi")
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)
	assert.NotEmpty(t, res.MessageID)
	assert.False(t, res.HistoryCleared)

	transcript, err := f.chats.LoadTranscript(ctx, res.SessionID)
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	assert.Equal(t, chat.SenderUser, transcript[0].Sender)
	assert.Equal(t, "Hello! How are you feeling?", transcript[1].Text)

	_, err = f.svc.Turn(ctx, "u-1", res.SessionID, "good")
	require.NoError(t, err)
	require.Len(t, f.flow.inputs, 2)
	assert.Len(t, f.flow.inputs[1].History, 2)
}

func TestTurnOffersReminderWithoutSaving(t *testing.T) {
	f := newFixture(&ai.CompanionOutput{
		Type:         chat.TypeConversational,
		TextResponse: "I can set a daily reminder for you to drink plenty of water.",
		ToolRequests: []ai.ToolRequest{{Name: ai.ToolSetReminder, Input: json.RawMessage(`{"symptom":"headache","advice":"drink plenty of water."}`)}},
	})
	ctx := context.Background()

	res, err := f.svc.Turn(ctx, "u-1", "", "I keep getting headaches")
	require.NoError(t, err)
	require.NotNil(t, res.ReminderOffer)
	assert.Equal(t, "headache", res.ReminderOffer.Symptom)
	assert.Equal(t, "drink plenty of water", res.ReminderOffer.Advice)
	assert.Equal(t, ReminderOfferPrompt, res.ReminderOffer.Prompt)

	list, err := f.reminders.List(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, list)

	// 用户确认后才保存
	_, err = f.reminders.Set(ctx, "u-1", res.ReminderOffer.Symptom, res.ReminderOffer.Advice)
	require.NoError(t, err)
	list, err = f.reminders.List(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "drink plenty of water", list[0].Advice)
}

func TestTurnSkipsOfferForExistingReminder(t *testing.T) {
	f := newFixture(&ai.CompanionOutput{
		Type:         chat.TypeConversational,
		TextResponse: "Remember to rest.",
		ToolRequests: []ai.ToolRequest{{Name: ai.ToolSetReminder, Input: json.RawMessage(`{"symptom":"Headache","advice":"rest"}`)}},
	})
	ctx := context.Background()
	_, err := f.reminders.Set(ctx, "u-1", "headache", "drink water")
	require.NoError(t, err)

	res, err := f.svc.Turn(ctx, "u-1", "", "headache again")
	require.NoError(t, err)
	assert.Nil(t, res.ReminderOffer)

	other, err := f.svc.Turn(ctx, "u-2", "", "headache again")
	require.NoError(t, err)
	assert.NotNil(t, other.ReminderOffer)
}

func TestTurnClearHistoryKeepsOnlyReply(t *testing.T) {
	f := newFixture(&ai.CompanionOutput{Type: chat.TypeConversational, TextResponse: "first"})
	ctx := context.Background()
	res, err := f.svc.Turn(ctx, "u-1", "", "hello")
	require.NoError(t, err)

	f.flow.out = &ai.CompanionOutput{
		Type:         chat.TypeConversational,
		TextResponse: "Okay, I've cleared our chat history.",
		ToolRequests: []ai.ToolRequest{{Name: ai.ToolClearChatHistory, Input: json.RawMessage(`{}`)}},
	}
	res, err = f.svc.Turn(ctx, "u-1", res.SessionID, "please clear the chat")
	require.NoError(t, err)
	assert.True(t, res.HistoryCleared)

	transcript, err := f.chats.LoadTranscript(ctx, res.SessionID)
	require.NoError(t, err)
	require.Len(t, transcript, 1)
	assert.Equal(t, "Okay, I've cleared our chat history.", transcript[0].Text)
}

func TestTurnKeepsUserMessageWhenFlowFails(t *testing.T) {
	f := newFixture(nil)
	f.flow.err = errors.New("model down")
	ctx := context.Background()

	session, err := f.chats.CreateSession(ctx, "u-1")
	require.NoError(t, err)
	_, err = f.svc.Turn(ctx, "u-1", session.ID, "hello?")
	require.Error(t, err)

	transcript, err := f.chats.LoadTranscript(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 1)
	assert.Equal(t, "hello?", transcript[0].Text)
}

func TestTurnStoresSymptomAnalysis(t *testing.T) {
	analysis := &health.SymptomAnalysis{Symptom: "cough", PossibleCauses: []string{"cold"}, Advice: "Rest."}
	f := newFixture(&ai.CompanionOutput{Type: chat.TypeSymptomAnalysis, Analysis: analysis, TextResponse: "summary"})

	res, err := f.svc.TurnStream(context.Background(), "u-1", "", "I have a cough", nil)
	require.NoError(t, err)
	transcript, _ := f.chats.LoadTranscript(context.Background(), res.SessionID)
	require.Len(t, transcript, 2)
	assert.Equal(t, chat.TypeSymptomAnalysis, transcript[1].Type)
	require.NotNil(t, transcript[1].Analysis)
}

func TestTurnRejectsForeignSessionAndBlankMessage(t *testing.T) {
	f := newFixture(&ai.CompanionOutput{Type: chat.TypeConversational, TextResponse: "x"})
	ctx := context.Background()
	session, _ := f.chats.CreateSession(ctx, "owner")

	_, err := f.svc.Turn(ctx, "intruder", session.ID, "hi")
	assert.ErrorIs(t, err, chatsvc.ErrSessionNotFound)

	_, err = f.svc.Turn(ctx, "owner", session.ID, "   ")
	assert.ErrorIs(t, err, ai.ErrInvalidInput)
}
