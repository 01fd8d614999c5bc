package symptom

import (
	"sort"
	"strings"
)

// Kind 表示一条消息应走的分支。
type Kind string

const (
	KindConversational  Kind = "conversational"
	KindSymptomAnalysis Kind = "symptom_analysis"
)

// Decision 给出启发式分诊结果。
type Decision struct {
	Kind            Kind
	Symptom         string
	Score           int
	SuggestedAdvice string
	ClearHistory    bool
}

// minSymptomScore 低于该分值的消息按普通对话处理。
const minSymptomScore = 5

var symptomBuckets = map[string][]string{
	"headache":     {"headache", "head hurts", "head is pounding", "migraine", "头痛", "头疼"},
	"fever":        {"fever", "feverish", "high temperature", "chills", "发烧", "发热"},
	"cough":        {"cough", "coughing", "咳嗽"},
	"sore throat":  {"sore throat", "throat hurts", "scratchy throat", "嗓子疼", "喉咙痛"},
	"nausea":       {"nausea", "nauseous", "feel sick", "queasy", "vomit", "恶心"},
	"fatigue":      {"fatigue", "exhausted", "tired all the time", "no energy", "worn out", "乏力", "疲劳"},
	"stomach ache": {"stomach ache", "stomachache", "stomach hurts", "stomach pain", "cramps", "肚子疼", "胃疼"},
	"dizziness":    {"dizzy", "dizziness", "lightheaded", "light-headed", "vertigo", "头晕"},
	"back pain":    {"back pain", "back hurts", "backache", "lower back", "腰疼", "背痛"},
	"insomnia":     {"insomnia", "can't sleep", "cannot sleep", "trouble sleeping", "失眠"},
	"runny nose":   {"runny nose", "stuffy nose", "congested", "sneezing", "流鼻涕", "鼻塞"},
	"rash":         {"rash", "itchy skin", "hives", "皮疹", "起疹子"},
}

var suggestedAdvice = map[string]string{
	"headache":     "Drink plenty of water and rest in a quiet, dark room.",
	"fever":        "Stay hydrated, rest, and monitor your temperature.",
	"cough":        "Drink warm fluids and rest your voice.",
	"sore throat":  "Gargle with warm salt water and sip warm drinks.",
	"nausea":       "Take small sips of clear fluids and eat bland food.",
	"fatigue":      "Keep a regular sleep schedule and stay hydrated.",
	"stomach ache": "Eat light meals and avoid spicy or greasy food.",
	"dizziness":    "Sit down, breathe slowly, and drink some water.",
	"back pain":    "Stay gently active and avoid heavy lifting.",
	"insomnia":     "Avoid screens before bed and keep a consistent bedtime.",
	"runny nose":   "Rest, drink fluids, and use a humidifier.",
	"rash":         "Keep the area clean and avoid scratching.",
}

// 出现这些表述时，说明用户在描述自己的不适。
var complaintCues = []string{
	"i have", "i've got", "i have got", "i feel", "i'm feeling", "i am feeling", "i've been",
	"suffering", "hurts", "pain", "ache", "sore", "since yesterday", "for days", "all day",
	"我有", "我感觉", "一直",
}

var clearHistoryPhrases = []string{
	"clear the chat", "clear chat", "clear the history", "clear my history", "clear our conversation",
	"delete the history", "delete the chat", "delete my history", "erase the chat", "start over",
	"start fresh", "reset the conversation", "清空聊天", "清除历史", "重新开始",
}

// 明确请求提醒的消息交给带工具的对话分支。
var reminderCues = []string{"remind me", "set a reminder", "reminder for", "提醒我"}

// Detect 根据关键词判断消息是症状描述还是普通对话。
func Detect(text string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(text))
	if normalized == "" {
		return Decision{Kind: KindConversational}
	}

	if IsClearHistoryRequest(normalized) {
		return Decision{Kind: KindConversational, ClearHistory: true}
	}

	symptom, score := bestSymptom(normalized)
	if symptom == "" {
		return Decision{Kind: KindConversational}
	}

	for _, cue := range complaintCues {
		if strings.Contains(normalized, cue) {
			score += 2
		}
	}

	decision := Decision{
		Kind:            KindConversational,
		Symptom:         symptom,
		Score:           score,
		SuggestedAdvice: suggestedAdvice[symptom],
	}
	if containsAny(normalized, reminderCues) {
		return decision
	}
	if score >= minSymptomScore {
		decision.Kind = KindSymptomAnalysis
	}
	return decision
}

// IsClearHistoryRequest reports whether the user asked to wipe the conversation.
func IsClearHistoryRequest(text string) bool {
	return containsAny(strings.ToLower(text), clearHistoryPhrases)
}

// AdviceFor 返回常见症状的通用建议。
func AdviceFor(symptom string) (string, bool) {
	advice, ok := suggestedAdvice[strings.ToLower(strings.TrimSpace(symptom))]
	return advice, ok
}

func bestSymptom(normalized string) (string, int) {
	// 固定遍历顺序，保证同分时结果稳定。
	names := make([]string, 0, len(symptomBuckets))
	for name := range symptomBuckets {
		names = append(names, name)
	}
	sort.Strings(names)

	best, bestScore := "", 0
	for _, name := range names {
		score := 0
		for _, word := range symptomBuckets[name] {
			if strings.Contains(normalized, word) {
				score += 3
			}
		}
		if score > bestScore {
			best, bestScore = name, score
		}
	}
	return best, bestScore
}

func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
