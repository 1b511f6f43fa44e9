package feishu

import (
	"sync"
	"time"
)

// Token safety parameters. A cached token is reused only while its remaining
// lifetime exceeds the safety window; the platform defaults to 7200s expiry
// when the exchange response omits one.
const (
	tokenSafetyWindow = 5 * time.Minute
	defaultTokenTTL   = 7200 * time.Second
)

// Token is a tenant access token with its absolute expiry instant.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// TokenCache stores tokens keyed by app id. Implementations must be safe for
// concurrent use; a lost race between two writers is tolerable (last write
// wins, both tokens are valid).
type TokenCache interface {
	Get(appID string) (Token, bool)
	Put(appID string, tok Token)
	Clear(appID string)
}

// MemoryTokenCache is the default in-process TokenCache.
type MemoryTokenCache struct {
	mu     sync.Mutex
	tokens map[string]Token
}

// NewMemoryTokenCache creates an empty in-process token cache.
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{tokens: make(map[string]Token)}
}

func (c *MemoryTokenCache) Get(appID string) (Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tok, ok := c.tokens[appID]
	return tok, ok
}

func (c *MemoryTokenCache) Put(appID string, tok Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[appID] = tok
}

func (c *MemoryTokenCache) Clear(appID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, appID)
}
