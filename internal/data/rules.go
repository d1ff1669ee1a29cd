package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/trihan96/FunPayServer/internal/biz/domain"
	"github.com/trihan96/FunPayServer/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// defaultEchoPhrases seed the canned-reply fragments used by the self-echo
// filter. They are data, not code: operators edit the echo_phrases table.
var defaultEchoPhrases = []string{
	"Привет. Чем могу помочь?",
	"Здравствуйте. Готов ответить",
	"Добрый день. Чем могу помочь?",
	"Оплатить можно через удобный способ",
	"Спасибо за покупку",
	"Товар выдан",
	"Добро пожаловать",
	"Отличного дня",
	"Привет! Продавец скоро ответит",
	"Продавец скоро ответит на твоё сообщение",
}

// ruleStore implements repo.RuleRepo and repo.GoodsRepo over SQLite
type ruleStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRuleStore opens (and if needed creates) the configuration database
func NewRuleStore(dbPath string, log zerolog.Logger) (*ruleStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS auto_responses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			command TEXT,
			response TEXT,
			patterns TEXT,
			responses TEXT,
			position INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS echo_phrases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			phrase TEXT UNIQUE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS faq_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			question TEXT NOT NULL,
			answer TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS greeted_users (
			user_name TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS goods (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS good_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			good_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			issued INTEGER DEFAULT 0,
			issued_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_good_items_good_issued ON good_items(good_id, issued)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	for _, phrase := range defaultEchoPhrases {
		if _, err := db.Exec(`INSERT OR IGNORE INTO echo_phrases (phrase) VALUES (?)`, phrase); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to seed echo phrases: %w", err)
		}
	}

	log.Info().Str("path", dbPath).Msg("rule store initialized")
	return &ruleStore{db: db, log: log.With().Str("component", "rules").Logger()}, nil
}

// LoadRules returns the response rule table in table order. Rows with
// unparseable pattern data are skipped, not fatal: a broken table degrades
// to fewer rules.
func (s *ruleStore) LoadRules(ctx context.Context) ([]domain.ResponseRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, command, response, patterns, responses
		FROM auto_responses
		ORDER BY position ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query auto responses: %w", err)
	}
	defer rows.Close()

	var rules []domain.ResponseRule
	for rows.Next() {
		var rule domain.ResponseRule
		var command, response, patterns, responses sql.NullString
		if err := rows.Scan(&rule.ID, &command, &response, &patterns, &responses); err != nil {
			return nil, fmt.Errorf("failed to scan auto response: %w", err)
		}
		rule.Command = command.String
		rule.Response = response.String
		if patterns.String != "" {
			if err := json.Unmarshal([]byte(patterns.String), &rule.Patterns); err != nil {
				s.log.Warn().Err(err).Int64("rule", rule.ID).Msg("bad patterns JSON, skipping rule")
				continue
			}
		}
		if responses.String != "" {
			if err := json.Unmarshal([]byte(responses.String), &rule.Responses); err != nil {
				s.log.Warn().Err(err).Int64("rule", rule.ID).Msg("bad responses JSON, skipping rule")
				continue
			}
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// SaveRule inserts one rule at the end of the table
func (s *ruleStore) SaveRule(ctx context.Context, rule *domain.ResponseRule) error {
	patterns, err := json.Marshal(rule.Patterns)
	if err != nil {
		return fmt.Errorf("failed to marshal patterns: %w", err)
	}
	responses, err := json.Marshal(rule.Responses)
	if err != nil {
		return fmt.Errorf("failed to marshal responses: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO auto_responses (command, response, patterns, responses, position)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM auto_responses))
	`, rule.Command, rule.Response, string(patterns), string(responses))
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	return nil
}

// EchoPhrases returns the canned-reply fragments
func (s *ruleStore) EchoPhrases(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT phrase FROM echo_phrases ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query echo phrases: %w", err)
	}
	defer rows.Close()

	var phrases []string
	for rows.Next() {
		var phrase string
		if err := rows.Scan(&phrase); err != nil {
			return nil, fmt.Errorf("failed to scan echo phrase: %w", err)
		}
		phrases = append(phrases, phrase)
	}
	return phrases, rows.Err()
}

// FAQEntries returns the oracle knowledge entries
func (s *ruleStore) FAQEntries(ctx context.Context) ([]domain.FAQEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, question, answer FROM faq_entries ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query faq entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.FAQEntry
	for rows.Next() {
		var entry domain.FAQEntry
		if err := rows.Scan(&entry.ID, &entry.Question, &entry.Answer); err != nil {
			return nil, fmt.Errorf("failed to scan faq entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// IsGreeted checks the first-contact greeting record
func (s *ruleStore) IsGreeted(ctx context.Context, userName string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM greeted_users WHERE user_name = ?`, userName).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check greeted user: %w", err)
	}
	return count > 0, nil
}

// MarkGreeted records the first-contact greeting
func (s *ruleStore) MarkGreeted(ctx context.Context, userName string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO greeted_users (user_name, created_at) VALUES (?, ?)
	`, userName, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to mark greeted user: %w", err)
	}
	return nil
}

// IssueGood pops one unissued item for the named good
func (s *ruleStore) IssueGood(ctx context.Context, goodName string) (string, error) {
	var goodID int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM goods WHERE name = ?`, goodName).Scan(&goodID)
	if err == sql.ErrNoRows {
		return "", repo.ErrGoodNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up good: %w", err)
	}

	var itemID int64
	var content string
	err = s.db.QueryRowContext(ctx, `
		SELECT id, content FROM good_items
		WHERE good_id = ? AND issued = 0
		ORDER BY id ASC LIMIT 1
	`, goodID).Scan(&itemID, &content)
	if err == sql.ErrNoRows {
		return "", repo.ErrOutOfStock
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up stock: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE good_items SET issued = 1, issued_at = ? WHERE id = ?
	`, time.Now().Unix(), itemID)
	if err != nil {
		return "", fmt.Errorf("failed to mark item issued: %w", err)
	}

	s.log.Info().Str("good", goodName).Int64("item", itemID).Msg("item issued")
	return content, nil
}

// Close closes the database connection
func (s *ruleStore) Close() error {
	return s.db.Close()
}
