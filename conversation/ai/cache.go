package ai

import (
	"strings"
	"sync"
	"time"

	"github.com/omniaweb/chatbot/conversation"
)

// responseCache is a process-local cache of generated replies keyed by
// normalized message text plus flow step.
//
// The cache is best-effort: it may be empty on any given process
// instance, so correctness never depends on it. Expired entries are
// dropped lazily on lookup.
type responseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	reply     conversation.AIReply
	expiresAt time.Time
}

func newResponseCache(ttl time.Duration, now func() time.Time) *responseCache {
	return &responseCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     now,
	}
}

// cacheKey normalizes the user message (lowercase, trimmed, collapsed
// whitespace) and couples it with the flow step, so the same question
// asked at different points of the conversation gets distinct answers.
func cacheKey(message string, step conversation.Step) string {
	norm := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(message))), " ")
	return norm + "|" + string(step)
}

// get returns a copy of the cached reply marked as a cache hit, with
// zero cost since no provider call happened.
func (c *responseCache) get(message string, step conversation.Step) (conversation.AIReply, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(message, step)
	entry, ok := c.entries[key]
	if !ok {
		return conversation.AIReply{}, false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return conversation.AIReply{}, false
	}

	reply := entry.reply
	reply.Cached = true
	reply.Cost = 0
	return reply, true
}

func (c *responseCache) put(message string, step conversation.Step, reply conversation.AIReply) {
	if c.ttl <= 0 {
		return
	}
	reply.Cached = false
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(message, step)] = cacheEntry{
		reply:     reply,
		expiresAt: c.now().Add(c.ttl),
	}
}
