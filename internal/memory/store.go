// Package memory implements the tiered context store: a bounded short-term
// buffer per chat, a capped long-term semantic index, an uncapped permanent
// index, and a web-search fallback. Retrieval walks the tiers in order and
// stops at the first one that answers.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"nexus/internal/config"
	"nexus/internal/logging"
	"nexus/internal/metrics"
	"nexus/internal/search"
	"nexus/internal/store"
	"nexus/internal/types"
)

// SemanticIndex is the slice of the persistent store the context layer
// needs. *store.Index satisfies it.
type SemanticIndex interface {
	Add(ctx context.Context, tier store.Tier, e store.Entry) error
	Search(ctx context.Context, tier store.Tier, chatID, query string, k int) ([]store.Entry, error)
	ClearChat(ctx context.Context, chatID string) error
}

// WebSearcher is the last retrieval tier. *search.Client satisfies it.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]search.Result, error)
}

// ContextStore coordinates the memory tiers for all chats. Index and web
// failures never surface to callers; they are logged and the affected tier
// reports empty.
type ContextStore struct {
	index    SemanticIndex
	web      WebSearcher
	classify *classifier

	shortTermSize int
	searchResults int

	mu      sync.Mutex
	buffers map[string]*lru.Cache[string, types.Message]

	log *zap.Logger
}

// NewContextStore builds the store. web may be nil; the web tier then
// always reports empty.
func NewContextStore(cfg config.MemoryConfig, index SemanticIndex, web WebSearcher) *ContextStore {
	k := cfg.ShortTermSize
	if k <= 0 {
		k = 10
	}
	topK := cfg.SearchResults
	if topK <= 0 {
		topK = 5
	}
	return &ContextStore{
		index:         index,
		web:           web,
		classify:      newClassifier(cfg.ImportantKeywords, cfg.CriticalKeywords, cfg.MinImportantWords),
		shortTermSize: k,
		searchResults: topK,
		buffers:       make(map[string]*lru.Cache[string, types.Message]),
		log:           logging.L("memory"),
	}
}

// bufferFor returns the chat's short-term buffer, creating it on first use.
// Entries are only ever added, so the cache evicts strictly oldest-first.
func (s *ContextStore) bufferFor(chatID string) *lru.Cache[string, types.Message] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if buf, ok := s.buffers[chatID]; ok {
		return buf
	}
	buf, err := lru.NewWithEvict(s.shortTermSize, func(_ string, m types.Message) {
		s.onEvict(chatID, m)
	})
	if err != nil {
		// Only reachable with size < 1, which the constructor prevents.
		panic(fmt.Sprintf("short-term buffer: %v", err))
	}
	s.buffers[chatID] = buf
	return buf
}

// onEvict promotes important messages to the long-term index as the
// short-term buffer drops them.
func (s *ContextStore) onEvict(chatID string, m types.Message) {
	if !s.classify.isImportant(m) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.index.Add(ctx, store.TierLongTerm, store.Entry{
		ID:        m.ID,
		ChatID:    chatID,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: m.Timestamp,
	})
	if err != nil {
		s.log.Warn("long-term promotion failed",
			zap.String("chat_id", chatID),
			zap.String("message_id", m.ID),
			zap.Error(err))
	}
}

// Record appends a message to the chat's short-term buffer and, when the
// content is critical, mirrors it into the permanent index. The returned
// string is the stored message's ID. Index failures are logged, not
// returned; the buffered message is never lost to them.
func (s *ContextStore) Record(ctx context.Context, chatID string, role types.Role, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("empty message content")
	}
	m := types.NewMessage(role, content)

	s.bufferFor(chatID).Add(m.ID, m)
	metrics.MessagesRecorded.WithLabelValues(string(role)).Inc()

	if s.classify.isCritical(m) {
		err := s.index.Add(ctx, store.TierPermanent, store.Entry{
			ID:        m.ID,
			ChatID:    chatID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.Timestamp,
		})
		if err != nil {
			s.log.Warn("permanent index add failed",
				zap.String("chat_id", chatID),
				zap.String("message_id", m.ID),
				zap.Error(err))
		}
	}
	return m.ID, nil
}

// Retrieve walks the tiers in order and returns the first non-empty
// answer. A tier that fails counts as empty. Found=false means no tier
// answered; that is a normal outcome.
func (s *ContextStore) Retrieve(ctx context.Context, chatID, query string) types.ContextResult {
	if items := s.searchShortTerm(chatID, query); len(items) > 0 {
		metrics.RetrievalTierHits.WithLabelValues(string(types.SourceShortTerm)).Inc()
		return types.ContextResult{Found: true, Source: types.SourceShortTerm, Items: items}
	}
	if items := s.searchLongTerm(ctx, chatID, query); len(items) > 0 {
		metrics.RetrievalTierHits.WithLabelValues(string(types.SourceLongTerm)).Inc()
		return types.ContextResult{Found: true, Source: types.SourceLongTerm, Items: items}
	}
	if items := s.searchWeb(ctx, query); len(items) > 0 {
		metrics.RetrievalTierHits.WithLabelValues(string(types.SourceWeb)).Inc()
		return types.ContextResult{Found: true, Source: types.SourceWeb, Items: items}
	}
	metrics.RetrievalTierHits.WithLabelValues("none").Inc()
	return types.EmptyContext()
}

// searchShortTerm returns the buffered messages when the query shares at
// least one significant token with any of them. A query with no
// significant tokens matches any non-empty buffer.
func (s *ContextStore) searchShortTerm(chatID string, query string) []types.Message {
	recent := s.Recent(chatID)
	if len(recent) == 0 {
		return nil
	}
	queryTokens := significantTokens(query)
	if len(queryTokens) == 0 {
		return recent
	}
	for _, m := range recent {
		content := strings.ToLower(m.Content)
		for _, tok := range queryTokens {
			if strings.Contains(content, tok) {
				return recent
			}
		}
	}
	return nil
}

func (s *ContextStore) searchLongTerm(ctx context.Context, chatID, query string) []types.Message {
	for _, tier := range []store.Tier{store.TierLongTerm, store.TierPermanent} {
		entries, err := s.index.Search(ctx, tier, chatID, query, s.searchResults)
		if err != nil {
			s.log.Warn("index search failed",
				zap.String("tier", string(tier)),
				zap.String("chat_id", chatID),
				zap.Error(err))
			continue
		}
		if len(entries) == 0 {
			continue
		}
		items := make([]types.Message, 0, len(entries))
		for _, e := range entries {
			items = append(items, types.Message{
				ID:        e.ID,
				Role:      e.Role,
				Content:   e.Content,
				Timestamp: e.CreatedAt,
			})
		}
		return items
	}
	return nil
}

// searchWeb wraps search hits as synthetic system messages so the caller
// can hand them to the provider unchanged.
func (s *ContextStore) searchWeb(ctx context.Context, query string) []types.Message {
	if s.web == nil {
		return nil
	}
	hits, err := s.web.Search(ctx, query)
	if err != nil {
		s.log.Warn("web search failed", zap.Error(err))
		return nil
	}
	items := make([]types.Message, 0, len(hits))
	for _, h := range hits {
		content := fmt.Sprintf("%s\n%s\n%s", h.Title, h.Snippet, h.Link)
		items = append(items, types.NewMessage(types.RoleSystem, content))
	}
	return items
}

// Recent returns the chat's short-term buffer oldest first. The slice is
// a copy.
func (s *ContextStore) Recent(chatID string) []types.Message {
	s.mu.Lock()
	buf, ok := s.buffers[chatID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	keys := buf.Keys()
	items := make([]types.Message, 0, len(keys))
	for _, k := range keys {
		if m, ok := buf.Peek(k); ok {
			items = append(items, m)
		}
	}
	return items
}

// ClearChat drops the chat's buffer and its chat-scoped index entries.
// Permanent entries for the chat go too; history clearing is explicit and
// user initiated.
func (s *ContextStore) ClearChat(ctx context.Context, chatID string) {
	s.mu.Lock()
	// Dropping the reference discards the buffer without firing eviction
	// callbacks; discarded messages must not be promoted.
	delete(s.buffers, chatID)
	s.mu.Unlock()
	if err := s.index.ClearChat(ctx, chatID); err != nil {
		s.log.Warn("index clear failed",
			zap.String("chat_id", chatID),
			zap.Error(err))
	}
}

// significantTokens returns the lowercase tokens of three or more letters.
func significantTokens(text string) []string {
	var out []string
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?;:\"'()")
		if len(tok) >= 3 {
			out = append(out, tok)
		}
	}
	return out
}
