package bot

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// confirmTTL bounds how long a pending confirmation button stays valid.
const confirmTTL = 15 * time.Minute

const (
	actionDelete     = "del"
	actionReschedule = "resched"
	actionCancel     = "cancel"
)

// pendingAction is a destructive operation awaiting a button press from
// the user who initiated it.
type pendingAction struct {
	action  string
	userID  int64
	itemID  int64
	dueAt   time.Time // reschedule only
	message *string   // reschedule only, nil keeps the old text
	expires time.Time
}

type confirmStore struct {
	mu      sync.Mutex
	pending map[string]pendingAction
	now     func() time.Time
}

func newConfirmStore() *confirmStore {
	return &confirmStore{pending: map[string]pendingAction{}, now: time.Now}
}

// put registers a pending action and returns its callback token.
func (c *confirmStore) put(a pendingAction) string {
	token := uuid.NewString()
	a.expires = c.now().Add(confirmTTL)
	c.mu.Lock()
	c.sweepLocked()
	c.pending[token] = a
	c.mu.Unlock()
	return token
}

// take consumes a token. A token is single-use; expired or unknown tokens
// report ok=false.
func (c *confirmStore) take(token string) (pendingAction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.pending[token]
	if !ok {
		return pendingAction{}, false
	}
	delete(c.pending, token)
	if c.now().After(a.expires) {
		return pendingAction{}, false
	}
	return a, true
}

func (c *confirmStore) sweepLocked() {
	now := c.now()
	for tok, a := range c.pending {
		if now.After(a.expires) {
			delete(c.pending, tok)
		}
	}
}

// callback data layout: "rem:<action>:<token>".
func callbackData(action, token string) string {
	return "rem:" + action + ":" + token
}

func parseCallbackData(data string) (action, token string, ok bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] != "rem" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
