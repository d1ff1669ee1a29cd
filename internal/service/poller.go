package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/trihan96/FunPayServer/internal/biz/repo"
	"github.com/trihan96/FunPayServer/internal/biz/usecase"
)

// Poller drives the dispatch engine: one loop polls the chat list, another
// reloads the rule table so configuration edits take effect without a
// restart.
type Poller struct {
	dispatcher *usecase.Dispatcher
	rules      repo.RuleRepo

	pollInterval   time.Duration
	reloadInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    zerolog.Logger
}

// NewPoller creates the poller
func NewPoller(
	dispatcher *usecase.Dispatcher,
	rules repo.RuleRepo,
	pollInterval, reloadInterval time.Duration,
	log zerolog.Logger,
) *Poller {
	return &Poller{
		dispatcher:     dispatcher,
		rules:          rules,
		pollInterval:   pollInterval,
		reloadInterval: reloadInterval,
		log:            log.With().Str("component", "poller").Logger(),
	}
}

// Start loads the rule table and launches the loops
func (p *Poller) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.reloadRules(true)

	p.wg.Add(2)
	go p.pollLoop()
	go p.reloadLoop()

	p.log.Info().
		Dur("poll_interval", p.pollInterval).
		Dur("reload_interval", p.reloadInterval).
		Msg("poller started")
}

// Stop stops the loops and waits for them to finish
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.log.Info().Msg("poller stopped")
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.dispatcher.ProcessMessages(p.ctx)
		}
	}
}

func (p *Poller) reloadLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.reloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.reloadRules(false)
		}
	}
}

// reloadRules refreshes the rule table and echo phrases. On the initial load
// a failure degrades to zero rules; on later reloads the previous table is
// kept.
func (p *Poller) reloadRules(initial bool) {
	rules, err := p.rules.LoadRules(p.ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("failed to load rules")
		if initial {
			p.dispatcher.SetRules(nil)
		}
	} else {
		p.dispatcher.SetRules(rules)
		p.log.Info().Int("rules", len(rules)).Msg("rule table loaded")
	}

	phrases, err := p.rules.EchoPhrases(p.ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("failed to load echo phrases")
		return
	}
	p.dispatcher.SetEchoPhrases(phrases)
}
