// Package stage infers the current conversation phase from tool-call names
// and input keywords. The inference is a heuristic: misclassification is
// acceptable noise, and an ambiguous turn holds the current stage rather
// than regressing.
package stage

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shark8848/convmem-go-sdk/core"
)

// Stage is the inferred phase of a conversation. The machine never halts;
// Idle is an explicit state reached only via idle keywords or timeout, never
// as a default.
type Stage string

const (
	Greeting  Stage = "greeting"
	Browsing  Stage = "browsing"
	Selecting Stage = "selecting"
	Cart      Stage = "cart"
	Checkout  Stage = "checkout"
	Tracking  Stage = "tracking"
	Service   Stage = "service"
	Idle      Stage = "idle"
)

const (
	maxIntentHistory  = 10
	maxViewedProducts = 5
)

// UserContext carries session-scoped user facts extracted opportunistically
// from tool outputs.
type UserContext struct {
	UserID             string   `json:"user_id,omitempty"`
	Username           string   `json:"username,omitempty"`
	IsVIP              bool     `json:"is_vip"`
	LastViewedProducts []string `json:"last_viewed_products,omitempty"`
	CartItemCount      int      `json:"cart_item_count"`
	RecentOrderID      string   `json:"recent_order_id,omitempty"`
}

// Tracker is the per-session conversation stage machine. It is not safe for
// concurrent use; the session's request-response cadence provides the
// serialization.
type Tracker struct {
	sessionID  string
	current    Stage
	userCtx    UserContext
	productID  string
	orderID    string
	intents    []Stage
	timeout    time.Duration
	createdAt  time.Time
	lastActive time.Time
}

// NewTracker creates a tracker in the greeting stage. timeout is the idle
// timeout; zero means the session never idles out.
func NewTracker(sessionID string, timeout time.Duration) *Tracker {
	now := time.Now()
	return &Tracker{
		sessionID:  sessionID,
		current:    Greeting,
		timeout:    timeout,
		createdAt:  now,
		lastActive: now,
	}
}

// Current returns the current stage, transitioning to Idle first if the
// session timed out. The stage is always defined.
func (t *Tracker) Current() Stage {
	if t.timeout > 0 && t.current != Idle && time.Since(t.lastActive) > t.timeout {
		t.setStage(Idle, "session timeout")
	}
	return t.current
}

// UserContext returns a copy of the extracted user context.
func (t *Tracker) UserContext() UserContext {
	ctx := t.userCtx
	ctx.LastViewedProducts = append([]string(nil), t.userCtx.LastViewedProducts...)
	return ctx
}

// SetUser records caller-known user identity facts.
func (t *Tracker) SetUser(userID, username string, vip bool) {
	if userID != "" {
		t.userCtx.UserID = userID
	}
	if username != "" {
		t.userCtx.Username = username
	}
	t.userCtx.IsVIP = vip
}

// Advance evaluates a completed turn: it infers the next stage, applies it,
// records the inferred intent, and extracts user context from tool outputs.
// It returns the resulting stage.
func (t *Tracker) Advance(input string, calls []core.ToolCall) Stage {
	next := t.Infer(input, calls)
	if next != t.current {
		t.setStage(next, "turn inference")
	}
	t.recordIntent(next)
	t.Observe(calls)
	t.lastActive = time.Now()
	return t.current
}

// Tool name categories, checked before keywords. A tool match always wins
// over a conflicting keyword match.
var cartTools = map[string]bool{
	"add_to_cart":      true,
	"view_cart":        true,
	"remove_from_cart": true,
}

var trackingTools = map[string]bool{
	"process_payment":  true,
	"get_order_detail": true,
	"track_shipment":   true,
}

var serviceTools = map[string]bool{
	"create_support_ticket": true,
	"process_return":        true,
}

// Keyword sets, checked in the same order the tool categories are.
var (
	browseKeywords   = []string{"search", "find", "show me", "recommend", "looking for", "browse", "what do you have"}
	cartKeywords     = []string{"cart", "add it", "remove it"}
	checkoutKeywords = []string{"buy", "checkout", "purchase", "pay", "place the order", "place an order"}
	trackingKeywords = []string{"order status", "track", "shipping", "shipment", "delivery", "where is my order"}
	serviceKeywords  = []string{"return", "refund", "exchange", "complaint", "customer service", "support"}
	idleKeywords     = []string{"goodbye", "bye", "see you", "that's all"}
)

// Infer derives the stage for a completed turn without applying it.
// Priority: tool-call category match, then input keywords, then the current
// stage unchanged.
func (t *Tracker) Infer(input string, calls []core.ToolCall) Stage {
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		names = append(names, c.Name)
	}

	for _, n := range names {
		if strings.Contains(n, "search_products") {
			return Browsing
		}
	}
	for _, n := range names {
		if strings.Contains(n, "get_product_detail") {
			return Selecting
		}
	}
	for _, n := range names {
		if cartTools[n] {
			return Cart
		}
	}
	for _, n := range names {
		if strings.Contains(n, "create_order") {
			return Checkout
		}
	}
	for _, n := range names {
		if trackingTools[n] {
			return Tracking
		}
	}
	for _, n := range names {
		if serviceTools[n] {
			return Service
		}
	}

	lower := strings.ToLower(input)
	switch {
	case matchAny(lower, browseKeywords):
		return Browsing
	case matchAny(lower, cartKeywords):
		return Cart
	case matchAny(lower, checkoutKeywords):
		return Checkout
	case matchAny(lower, trackingKeywords):
		return Tracking
	case matchAny(lower, serviceKeywords):
		return Service
	case matchAny(lower, idleKeywords):
		return Idle
	}

	return t.current
}

// Observe extracts user context from tool call outputs. A tool output that
// fails to parse leaves the corresponding field unchanged.
func (t *Tracker) Observe(calls []core.ToolCall) {
	for _, call := range calls {
		switch call.Name {
		case "view_cart":
			var out struct {
				Items []json.RawMessage `json:"items"`
			}
			if err := json.Unmarshal([]byte(call.Output), &out); err == nil && out.Items != nil {
				t.userCtx.CartItemCount = len(out.Items)
			}

		case "create_order":
			var out struct {
				Order struct {
					OrderID json.Number `json:"order_id"`
				} `json:"order"`
			}
			if err := json.Unmarshal([]byte(call.Output), &out); err == nil && out.Order.OrderID.String() != "" {
				t.orderID = out.Order.OrderID.String()
				t.userCtx.RecentOrderID = t.orderID
			}

		case "get_product_detail":
			var in struct {
				ProductID json.Number `json:"product_id"`
			}
			if err := json.Unmarshal(call.Input, &in); err == nil && in.ProductID.String() != "" {
				t.viewProduct(in.ProductID.String())
			}
		}
	}
}

// ContextSummary renders a one-line digest of the session state, suitable
// for prompt injection alongside the memory digest.
func (t *Tracker) ContextSummary() string {
	parts := []string{fmt.Sprintf("stage: %s", t.current)}
	if t.userCtx.IsVIP {
		parts = append(parts, "vip customer")
	}
	if t.userCtx.CartItemCount > 0 {
		parts = append(parts, fmt.Sprintf("cart: %d items", t.userCtx.CartItemCount))
	}
	if t.orderID != "" {
		parts = append(parts, fmt.Sprintf("current order: #%s", t.orderID))
	}
	if n := len(t.userCtx.LastViewedProducts); n > 0 {
		parts = append(parts, fmt.Sprintf("viewed %d products", n))
	}
	return strings.Join(parts, " | ")
}

// Snapshot is the serializable stage state, persisted with the session.
type Snapshot struct {
	SessionID      string      `json:"session_id"`
	Stage          Stage       `json:"stage"`
	UserContext    UserContext `json:"user_context"`
	CurrentProduct string      `json:"current_product_id,omitempty"`
	CurrentOrder   string      `json:"current_order_id,omitempty"`
	Intents        []Stage     `json:"intent_history,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	LastActiveAt   time.Time   `json:"last_active_at"`
}

// Snapshot captures the tracker state for persistence.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		SessionID:      t.sessionID,
		Stage:          t.current,
		UserContext:    t.UserContext(),
		CurrentProduct: t.productID,
		CurrentOrder:   t.orderID,
		Intents:        append([]Stage(nil), t.intents...),
		CreatedAt:      t.createdAt,
		LastActiveAt:   t.lastActive,
	}
}

// Restore replaces the tracker state with a previously captured snapshot.
func (t *Tracker) Restore(s Snapshot) {
	if s.SessionID != "" {
		t.sessionID = s.SessionID
	}
	if s.Stage != "" {
		t.current = s.Stage
	}
	t.userCtx = s.UserContext
	t.productID = s.CurrentProduct
	t.orderID = s.CurrentOrder
	t.intents = append([]Stage(nil), s.Intents...)
	if !s.CreatedAt.IsZero() {
		t.createdAt = s.CreatedAt
	}
	if !s.LastActiveAt.IsZero() {
		t.lastActive = s.LastActiveAt
	}
}

func (t *Tracker) setStage(next Stage, reason string) {
	log.Printf("[STAGE] %s -> %s (session=%s, reason=%s)", t.current, next, t.sessionID, reason)
	t.current = next
}

func (t *Tracker) recordIntent(s Stage) {
	t.intents = append(t.intents, s)
	if len(t.intents) > maxIntentHistory {
		t.intents = t.intents[len(t.intents)-maxIntentHistory:]
	}
}

func (t *Tracker) viewProduct(id string) {
	for _, p := range t.userCtx.LastViewedProducts {
		if p == id {
			t.productID = id
			return
		}
	}
	t.userCtx.LastViewedProducts = append(t.userCtx.LastViewedProducts, id)
	if len(t.userCtx.LastViewedProducts) > maxViewedProducts {
		t.userCtx.LastViewedProducts = t.userCtx.LastViewedProducts[len(t.userCtx.LastViewedProducts)-maxViewedProducts:]
	}
	t.productID = id
}

func matchAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
