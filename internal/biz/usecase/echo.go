package usecase

import (
	"strings"
	"sync"

	"github.com/trihan96/FunPayServer/internal/biz/domain"
)

const (
	sentFingerprintCap  = 100
	fingerprintPrefix   = 50
	echoSimilarityFloor = 80
)

// Fingerprint builds the key recorded for an outbound send: conversation
// node plus the normalized message prefix. The same normalization is applied
// when checking inbound messages, so trailing whitespace or case differences
// cannot defeat the lookup.
func Fingerprint(node, message string) string {
	text := strings.ToLower(strings.TrimSpace(message))
	runes := []rune(text)
	if len(runes) > fingerprintPrefix {
		text = string(runes[:fingerprintPrefix])
	}
	return node + "_" + text
}

// SentStore is a bounded FIFO set of fingerprints for recently sent messages
type SentStore struct {
	mu    sync.Mutex
	order []string
	keys  map[string]struct{}
}

// NewSentStore creates an empty fingerprint set
func NewSentStore() *SentStore {
	return &SentStore{keys: make(map[string]struct{})}
}

// Add records a fingerprint, evicting the oldest entry once the set is full
func (s *SentStore) Add(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; ok {
		return
	}
	s.keys[key] = struct{}{}
	s.order = append(s.order, key)

	for len(s.order) > sentFingerprintCap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.keys, oldest)
	}
}

// Contains reports whether the fingerprint is in the set
func (s *SentStore) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// Texts returns the stored message texts with the node prefix stripped
func (s *SentStore) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]string, 0, len(s.order))
	for _, key := range s.order {
		if _, text, ok := strings.Cut(key, "_"); ok {
			result = append(result, text)
		}
	}
	return result
}

// Len returns the number of stored fingerprints
func (s *SentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// EchoFilter classifies inbound messages as bot-originated. The bot's own
// replies come back through the same polled chat list as ordinary messages,
// and the sender identity alone is not reliable, so several redundant
// heuristics back each other up.
type EchoFilter struct {
	botName         string
	watermark       string
	manualWatermark string
	sent            *SentStore

	mu      sync.RWMutex
	phrases []string
}

// NewEchoFilter creates a filter over the given sent-fingerprint set
func NewEchoFilter(botName, watermark, manualWatermark string, sent *SentStore) *EchoFilter {
	return &EchoFilter{
		botName:         botName,
		watermark:       watermark,
		manualWatermark: manualWatermark,
		sent:            sent,
	}
}

// SetPhrases replaces the canned-reply fragments checked by IsBotMessage
func (f *EchoFilter) SetPhrases(phrases []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phrases = phrases
}

// IsBotMessage reports whether the snapshot looks like the bot's own traffic
func (f *EchoFilter) IsBotMessage(chat domain.ChatSnapshot) bool {
	if f.botName != "" && chat.UserName == f.botName {
		return true
	}
	if f.sent.Contains(Fingerprint(chat.Node, chat.Message)) {
		return true
	}
	if f.watermark != "" && strings.Contains(chat.Message, f.watermark) {
		return true
	}
	if f.manualWatermark != "" && strings.Contains(chat.Message, f.manualWatermark) {
		return true
	}

	f.mu.RLock()
	phrases := f.phrases
	f.mu.RUnlock()
	for _, phrase := range phrases {
		if phrase != "" && strings.Contains(chat.Message, phrase) {
			return true
		}
	}

	return f.isSimilarToRecentlySent(chat.Message)
}

// isSimilarToRecentlySent compares the message against every recently sent
// text: equality, containment either way, or similarity above the floor all
// count as a match.
func (f *EchoFilter) isSimilarToRecentlySent(message string) bool {
	lowerMessage := strings.ToLower(strings.TrimSpace(message))

	for _, sentText := range f.sent.Texts() {
		if sentText == "" {
			continue
		}
		if lowerMessage == sentText ||
			strings.Contains(lowerMessage, sentText) ||
			strings.Contains(sentText, lowerMessage) {
			return true
		}
		if Similarity(lowerMessage, sentText) > echoSimilarityFloor {
			return true
		}
	}
	return false
}
