package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/trihan96/FunPayServer/internal/biz/domain"
	"github.com/trihan96/FunPayServer/internal/biz/repo"
)

// DispatchConfig is the immutable configuration of the dispatch engine
type DispatchConfig struct {
	BotName         string
	OwnerName       string
	Watermark       string
	ManualWatermark string

	AutoResponseEnabled bool
	OracleEnabled       bool

	AutoIssueTestCommand    bool
	AutoDeliveryTestCommand bool

	GreetingEnabled bool
	GreetingText    string
	FollowUpText    string

	ChunkDelay          time.Duration
	DefaultPauseMinutes int
}

// GreetedStore is the subset of the rule store the greeting flow needs
type GreetedStore interface {
	IsGreeted(ctx context.Context, userName string) (bool, error)
	MarkGreeted(ctx context.Context, userName string) error
}

// Dispatcher decides, per unread conversation, whether to reply and with
// what. One poll cycle runs at a time; overlapping cycles are dropped.
type Dispatcher struct {
	cfg      DispatchConfig
	chatRepo repo.ChatRepo
	oracle   repo.OracleRepo
	goods    repo.GoodsRepo
	greeted  GreetedStore

	matcher *Matcher
	pause   *PauseStore
	history *HistoryStore
	sent    *SentStore
	echo    *EchoFilter
	buffer  *MessageBuffer

	rulesMu sync.RWMutex
	rules   []domain.ResponseRule

	busy atomic.Bool
	log  zerolog.Logger
}

// NewDispatcher wires the engine. bufferDelay <= 0 disables message
// buffering; maxBufferTime caps how long a continuously typing user can
// postpone the oracle request.
func NewDispatcher(
	cfg DispatchConfig,
	chatRepo repo.ChatRepo,
	oracle repo.OracleRepo,
	goods repo.GoodsRepo,
	greeted GreetedStore,
	matcher *Matcher,
	bufferDelay, maxBufferTime time.Duration,
	log zerolog.Logger,
) *Dispatcher {
	sent := NewSentStore()
	d := &Dispatcher{
		cfg:      cfg,
		chatRepo: chatRepo,
		oracle:   oracle,
		goods:    goods,
		greeted:  greeted,
		matcher:  matcher,
		pause:    NewPauseStore(),
		history:  NewHistoryStore(),
		sent:     sent,
		echo:     NewEchoFilter(cfg.BotName, cfg.Watermark, cfg.ManualWatermark, sent),
		log:      log.With().Str("component", "dispatch").Logger(),
	}
	d.buffer = NewMessageBuffer(bufferDelay, maxBufferTime, d.processCombined)
	return d
}

// SetRules replaces the response rule table
func (d *Dispatcher) SetRules(rules []domain.ResponseRule) {
	d.rulesMu.Lock()
	defer d.rulesMu.Unlock()
	d.rules = rules
}

// SetEchoPhrases replaces the canned-reply fragments of the echo filter
func (d *Dispatcher) SetEchoPhrases(phrases []string) {
	d.echo.SetPhrases(phrases)
}

// Pause exposes the pause store for the service layer
func (d *Dispatcher) Pause() *PauseStore { return d.pause }

// History exposes the history store for the service layer
func (d *Dispatcher) History() *HistoryStore { return d.history }

func (d *Dispatcher) currentRules() []domain.ResponseRule {
	d.rulesMu.RLock()
	defer d.rulesMu.RUnlock()
	return d.rules
}

func (d *Dispatcher) matchIfEnabled(message string) *MatchResult {
	if !d.cfg.AutoResponseEnabled {
		return nil
	}
	return d.matcher.MatchRule(message, d.currentRules())
}

// ProcessMessages runs one poll cycle. A cycle already in flight makes this
// call a no-op; poll requests are dropped, not queued. A failed poll is
// treated as "no conversations this cycle". Per-conversation failures are
// logged and never abort the batch.
func (d *Dispatcher) ProcessMessages(ctx context.Context) {
	if !d.busy.CompareAndSwap(false, true) {
		return
	}
	defer d.busy.Store(false)

	chats, err := d.chatRepo.PollConversations(ctx)
	if err != nil {
		d.log.Warn().Err(err).Msg("poll failed, skipping cycle")
		return
	}

	for _, chat := range chats {
		if !chat.IsUnread {
			continue
		}
		if err := d.processChat(ctx, chat); err != nil {
			d.log.Error().Err(err).Str("user", chat.UserName).Msg("conversation scan failed")
		}
	}
}

func (d *Dispatcher) processChat(ctx context.Context, chat domain.ChatSnapshot) error {
	if d.echo.IsBotMessage(chat) {
		d.log.Debug().Str("user", chat.UserName).Msg("skipping bot message")
		return nil
	}

	if d.pause.IsPaused(chat.UserName) {
		d.log.Info().
			Str("user", chat.UserName).
			Int("remaining_minutes", d.pause.RemainingMinutes(chat.UserName)).
			Msg("auto-response paused")
		return nil
	}

	if d.cfg.GreetingEnabled {
		d.maybeGreet(ctx, chat)
	}

	if result := d.matchIfEnabled(chat.Message); result != nil {
		d.log.Info().
			Str("user", chat.UserName).
			Str("pattern", result.Pattern).
			Str("match_type", string(result.Type)).
			Float64("similarity", result.Similarity).
			Msg("rule matched")
		if d.send(ctx, chat.Node, chat.UserName, result.Response, domain.WatermarkAuto) {
			d.log.Info().Str("user", chat.UserName).Msg("auto-response sent")
		}
		return nil
	}

	if handled := d.processTestCommands(ctx, chat); handled {
		return nil
	}

	if d.cfg.OwnerName != "" && chat.UserName == d.cfg.OwnerName && isOwnerCommand(chat.Message) {
		d.processOwnerCommands(ctx, chat)
		return nil
	}

	// No rule or command consumed the message: hand it to the oracle path.
	// The buffered flush will query the oracle asynchronously.
	if d.cfg.OracleEnabled && d.oracle != nil {
		buffered := d.buffer.Add(chat.UserName, chat.Message, chat.Node)
		d.log.Debug().Str("user", chat.UserName).Bool("buffered", buffered).Msg("message queued for oracle")
	}
	return nil
}

// maybeGreet sends the first-contact greeting once per user. System previews
// ("Покупатель ..."/"The buyer ...") and users with an existing transcript
// are skipped.
func (d *Dispatcher) maybeGreet(ctx context.Context, chat domain.ChatSnapshot) {
	if d.cfg.GreetingText == "" || isSystemMessage(chat.Message) {
		return
	}
	if d.history.Len(chat.UserName) > 0 {
		return
	}
	if d.greeted == nil {
		return
	}
	greeted, err := d.greeted.IsGreeted(ctx, chat.UserName)
	if err != nil {
		d.log.Warn().Err(err).Str("user", chat.UserName).Msg("greeted lookup failed")
		return
	}
	if greeted {
		return
	}

	msg := strings.ReplaceAll(d.cfg.GreetingText, "{name}", chat.UserName)
	if d.send(ctx, chat.Node, chat.UserName, msg, domain.WatermarkAuto) {
		d.log.Info().Str("user", chat.UserName).Msg("greeting sent")
		if err := d.greeted.MarkGreeted(ctx, chat.UserName); err != nil {
			d.log.Warn().Err(err).Str("user", chat.UserName).Msg("failed to record greeting")
		}
	}
}

// processTestCommands handles the feature-flagged delivery and diagnostic
// triggers. It reports whether the message was consumed.
func (d *Dispatcher) processTestCommands(ctx context.Context, chat domain.ChatSnapshot) bool {
	if d.cfg.AutoIssueTestCommand && strings.Contains(chat.Message, "!автовыдача") {
		d.handleIssueCommand(ctx, chat)
		return true
	}

	if d.cfg.AutoIssueTestCommand && strings.Contains(chat.Message, "!followuptest") {
		order := domain.Order{
			ID:        "#TEST-001",
			BuyerName: chat.UserName,
			BuyerNode: chat.Node,
			Price:     "100",
			Unit:      "₽",
			Name:      "Тестовый товар",
		}
		d.sendFollowUp(ctx, order)
		if d.send(ctx, chat.Node, chat.UserName, "Тестовое follow-up сообщение отправлено.", domain.WatermarkAuto) {
			d.log.Info().Str("user", chat.UserName).Msg("follow-up test sent")
		}
		return true
	}

	if d.cfg.AutoDeliveryTestCommand && strings.Contains(chat.Message, "!ordertest") {
		d.log.Info().Str("user", chat.UserName).Msg("order test triggered")
		d.send(ctx, chat.Node, chat.UserName, "Тестовое уведомление о новом заказе обработано.", domain.WatermarkAuto)
		return true
	}

	return false
}

func (d *Dispatcher) handleIssueCommand(ctx context.Context, chat domain.ChatSnapshot) {
	goodName := quotedName(chat.Message)
	if goodName == "" {
		d.send(ctx, chat.Node, chat.UserName, `Товар не указан. Укажите название предложения в кавычках (").`, domain.WatermarkAuto)
		return
	}

	d.log.Info().Str("user", chat.UserName).Str("good", goodName).Msg("delivery command")

	if d.goods == nil {
		d.send(ctx, chat.Node, chat.UserName, "Автовыдача не настроена.", domain.WatermarkAuto)
		return
	}

	content, err := d.goods.IssueGood(ctx, goodName)
	switch {
	case errors.Is(err, repo.ErrGoodNotFound):
		d.send(ctx, chat.Node, chat.UserName, `Товара "`+goodName+`" нет в списке автовыдачи`, domain.WatermarkAuto)
	case errors.Is(err, repo.ErrOutOfStock):
		d.send(ctx, chat.Node, chat.UserName, "Товар закончился", domain.WatermarkAuto)
	case err != nil:
		d.log.Warn().Err(err).Str("good", goodName).Msg("delivery failed")
	default:
		if d.send(ctx, chat.Node, chat.UserName, content, domain.WatermarkAuto) {
			d.log.Info().Str("user", chat.UserName).Str("good", goodName).Msg("good issued")
		}
	}
}

func (d *Dispatcher) sendFollowUp(ctx context.Context, order domain.Order) {
	if d.cfg.FollowUpText == "" {
		return
	}
	msg := strings.ReplaceAll(d.cfg.FollowUpText, "{name}", order.BuyerName)
	msg = strings.ReplaceAll(msg, "{order}", order.ID)
	msg = strings.ReplaceAll(msg, "{good}", order.Name)
	d.send(ctx, order.BuyerNode, order.BuyerName, msg, domain.WatermarkAuto)
}

// processOwnerCommands handles the privileged in-chat controls. Each command
// is an exact-prefix or exact-string match on the lowercased, trimmed text.
func (d *Dispatcher) processOwnerCommands(ctx context.Context, chat domain.ChatSnapshot) {
	message := strings.ToLower(strings.TrimSpace(chat.Message))

	switch {
	case strings.HasPrefix(message, "!pause "):
		parts := strings.Fields(message)
		if len(parts) < 2 {
			return
		}
		target := parts[1]
		minutes := d.cfg.DefaultPauseMinutes
		if len(parts) > 2 {
			if parsed, err := strconv.Atoi(parts[2]); err == nil && parsed > 0 {
				minutes = parsed
			}
		}
		d.pause.Pause(target, minutes)
		d.log.Info().Str("target", target).Int("minutes", minutes).Msg("user paused")
		d.send(ctx, chat.Node, chat.UserName,
			"Автоответы приостановлены для "+target+" на "+strconv.Itoa(minutes)+" мин.", domain.WatermarkManual)

	case strings.HasPrefix(message, "!unpause "):
		parts := strings.Fields(message)
		if len(parts) < 2 {
			return
		}
		target := parts[1]
		var reply string
		if d.pause.Unpause(target) {
			reply = "Автоответы возобновлены для " + target + "."
			d.log.Info().Str("target", target).Msg("user unpaused")
		} else {
			reply = "Пользователь " + target + " не был на паузе."
		}
		d.send(ctx, chat.Node, chat.UserName, reply, domain.WatermarkManual)

	case message == "!pauselist":
		active := d.pause.ListActive()
		if len(active) == 0 {
			d.send(ctx, chat.Node, chat.UserName, "Нет пользователей на паузе.", domain.WatermarkManual)
			return
		}
		var sb strings.Builder
		sb.WriteString("Пользователи на паузе:\n")
		for _, entry := range active {
			sb.WriteString("- " + entry.UserName + " (" + strconv.Itoa(entry.RemainingMinutes) + " мин.)\n")
		}
		d.send(ctx, chat.Node, chat.UserName, sb.String(), domain.WatermarkManual)

	case message == "!help":
		helpText := "Доступные команды:\n" +
			"!pause [пользователь] [минуты] - Приостановить автоответы\n" +
			"!unpause [пользователь] - Возобновить автоответы\n" +
			"!pauselist - Список пользователей на паузе\n" +
			"!help - Показать эту справку"
		d.send(ctx, chat.Node, chat.UserName, helpText, domain.WatermarkManual)
	}
}

// processCombined is the buffer flush path. It runs on the per-user timer
// goroutine and must not block other users' buffers.
func (d *Dispatcher) processCombined(userName, combined, node string) {
	if combined == "" {
		return
	}
	ctx := context.Background()

	history := d.history.Get(userName)
	answer, err := d.oracle.Answer(ctx, combined, userName, history)

	// The combined query goes into the transcript whether or not the
	// oracle produced anything.
	d.history.Append(userName, domain.ChatMessage{
		Sender:    domain.SenderUser,
		Text:      combined,
		Timestamp: time.Now(),
	})

	if err != nil {
		d.log.Warn().Err(err).Str("user", userName).Msg("oracle query failed")
		return
	}
	if answer == "" {
		d.log.Debug().Str("user", userName).Msg("oracle had no answer")
		return
	}

	chunks := d.oracle.Chunk(answer)
	allSent := true
	for i, chunk := range chunks {
		if i > 0 {
			time.Sleep(d.cfg.ChunkDelay)
		}
		if !d.sendTagged(ctx, node, chunk, domain.WatermarkAuto) {
			allSent = false
			d.log.Warn().Str("user", userName).Int("chunk", i+1).Int("total", len(chunks)).Msg("failed to send answer chunk")
		}
	}

	if allSent {
		d.history.Append(userName, domain.ChatMessage{
			Sender:    domain.SenderBot,
			Text:      answer,
			Timestamp: time.Now(),
		})
		d.log.Info().Str("user", userName).Int("chunks", len(chunks)).Msg("oracle answer sent")
	}
}

// sendTagged delivers text and records its fingerprint on success
func (d *Dispatcher) sendTagged(ctx context.Context, node, text string, kind domain.WatermarkKind) bool {
	ok := d.chatRepo.Send(ctx, node, text, kind)
	if ok {
		d.sent.Add(Fingerprint(node, text))
	}
	return ok
}

// send is sendTagged plus a transcript entry for the outbound message
func (d *Dispatcher) send(ctx context.Context, node, userName, text string, kind domain.WatermarkKind) bool {
	ok := d.sendTagged(ctx, node, text, kind)
	if ok {
		d.history.Append(userName, domain.ChatMessage{
			Sender:    domain.SenderBot,
			Text:      text,
			Timestamp: time.Now(),
		})
	} else {
		d.log.Warn().Str("user", userName).Msg("send failed")
	}
	return ok
}

// quotedName extracts the first quoted segment of a command. Messages
// scraped from the chat list may still carry HTML-escaped quotes.
func quotedName(message string) string {
	normalized := strings.ReplaceAll(message, "&quot;", `"`)
	parts := strings.Split(normalized, `"`)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// isOwnerCommand reports whether the text starts with one of the privileged
// in-chat controls
func isOwnerCommand(message string) bool {
	message = strings.ToLower(strings.TrimSpace(message))
	return strings.HasPrefix(message, "!pause ") ||
		strings.HasPrefix(message, "!unpause ") ||
		message == "!pauselist" ||
		message == "!help"
}

// isSystemMessage recognizes marketplace status previews that must not be
// answered or greeted
func isSystemMessage(message string) bool {
	return strings.Contains(message, "Покупатель") || strings.Contains(message, "The buyer")
}
