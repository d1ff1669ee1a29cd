package usecase

import (
	"fmt"
	"strings"
	"testing"

	"github.com/trihan96/FunPayServer/internal/biz/domain"
)

func TestFingerprint_Normalization(t *testing.T) {
	base := Fingerprint("users-123-456", "Спасибо за покупку!")
	padded := Fingerprint("users-123-456", "  СПАСИБО ЗА ПОКУПКУ!  \n")
	if base != padded {
		t.Errorf("case and whitespace must not change the fingerprint: %q vs %q", base, padded)
	}

	long := strings.Repeat("я", 80)
	fp := Fingerprint("node", long)
	if got := len([]rune(fp)); got != len("node_")+50 {
		t.Errorf("fingerprint length = %d runes, want node prefix plus 50", got)
	}

	if Fingerprint("node-a", "привет") == Fingerprint("node-b", "привет") {
		t.Error("different nodes must produce different fingerprints")
	}
}

func TestSentStore_FIFOEviction(t *testing.T) {
	s := NewSentStore()

	for i := 0; i < 101; i++ {
		s.Add(Fingerprint("node", fmt.Sprintf("message %d", i)))
	}

	if s.Len() != 100 {
		t.Fatalf("store size = %d, want 100", s.Len())
	}
	if s.Contains(Fingerprint("node", "message 0")) {
		t.Error("oldest fingerprint must have been evicted")
	}
	if !s.Contains(Fingerprint("node", "message 1")) {
		t.Error("second fingerprint must survive")
	}
	if !s.Contains(Fingerprint("node", "message 100")) {
		t.Error("newest fingerprint must be present")
	}
}

func TestSentStore_DuplicateAdd(t *testing.T) {
	s := NewSentStore()
	key := Fingerprint("node", "привет")

	s.Add(key)
	s.Add(key)

	if s.Len() != 1 {
		t.Errorf("duplicate add must not grow the store, got %d", s.Len())
	}
}

func TestEchoFilter_BotName(t *testing.T) {
	f := NewEchoFilter("shop_bot", "", "", NewSentStore())

	if !f.IsBotMessage(domain.ChatSnapshot{UserName: "shop_bot", Message: "любой текст"}) {
		t.Error("message from the bot account must be flagged")
	}
	if f.IsBotMessage(domain.ChatSnapshot{UserName: "Ivan", Message: "любой текст"}) {
		t.Error("message from another user must pass")
	}
}

func TestEchoFilter_Fingerprint(t *testing.T) {
	sent := NewSentStore()
	f := NewEchoFilter("", "", "", sent)

	sent.Add(Fingerprint("users-1-2", "Добрый день!"))

	if !f.IsBotMessage(domain.ChatSnapshot{Node: "users-1-2", Message: "добрый день!  ", UserName: "Ivan"}) {
		t.Error("recorded send must be recognized despite case and whitespace")
	}
}

func TestEchoFilter_Watermarks(t *testing.T) {
	f := NewEchoFilter("", "[ 🤖 Автоответ ]", "[ 👤 ]", NewSentStore())

	if !f.IsBotMessage(domain.ChatSnapshot{Message: "[ 🤖 Автоответ ] Цена 100 руб"}) {
		t.Error("auto watermark must be flagged")
	}
	if !f.IsBotMessage(domain.ChatSnapshot{Message: "[ 👤 ] Отвечу позже"}) {
		t.Error("manual watermark must be flagged")
	}
	if f.IsBotMessage(domain.ChatSnapshot{Message: "Обычное сообщение"}) {
		t.Error("plain message must pass")
	}
}

func TestEchoFilter_Phrases(t *testing.T) {
	f := NewEchoFilter("", "", "", NewSentStore())
	f.SetPhrases([]string{"Спасибо за покупку"})

	if !f.IsBotMessage(domain.ChatSnapshot{Message: "Спасибо за покупку! Оставьте отзыв"}) {
		t.Error("canned phrase must be flagged")
	}

	f.SetPhrases(nil)
	if f.IsBotMessage(domain.ChatSnapshot{Message: "Спасибо за покупку! Оставьте отзыв"}) {
		t.Error("cleared phrases must not be flagged")
	}
}

func TestEchoFilter_SimilarToRecentlySent(t *testing.T) {
	sent := NewSentStore()
	f := NewEchoFilter("", "", "", sent)

	sent.Add(Fingerprint("users-1-2", "Ваш заказ готов, проверьте почту"))

	// Same text arriving from a different conversation node: the exact
	// fingerprint misses, the similarity scan catches it
	if !f.IsBotMessage(domain.ChatSnapshot{Node: "users-9-9", Message: "Ваш заказ готов, проверьте почту"}) {
		t.Error("near-identical recently sent text must be flagged")
	}
	if f.IsBotMessage(domain.ChatSnapshot{Node: "users-9-9", Message: "Когда будет готов мой заказ?"}) {
		t.Error("unrelated question must pass")
	}
}
