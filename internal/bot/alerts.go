package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"alpha-arena/internal/domain"

	tele "gopkg.in/telebot.v3"
)

type messageSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// alertFilter decides which decision cycles a chat hears about.
type alertFilter string

const (
	filterEvery   alertFilter = "every"
	filterChanges alertFilter = "changes"
)

// AlertDispatcher broadcasts decision cycles to subscribed chats. Chats that
// blocked the bot or no longer exist are dropped on the next send.
type AlertDispatcher struct {
	sender messageSender

	mu            sync.Mutex
	subscriptions map[int64]alertFilter
	lastDigest    string
}

func NewAlertDispatcher(sender messageSender) *AlertDispatcher {
	return &AlertDispatcher{
		sender:        sender,
		subscriptions: make(map[int64]alertFilter),
	}
}

// Subscribe registers chatID with the given filter. It reports false when the
// chat already had that exact filter.
func (d *AlertDispatcher) Subscribe(chatID int64, filter alertFilter) bool {
	if filter == "" {
		filter = filterEvery
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if current, ok := d.subscriptions[chatID]; ok && current == filter {
		return false
	}
	d.subscriptions[chatID] = filter
	return true
}

func (d *AlertDispatcher) Unsubscribe(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.subscriptions[chatID]; !ok {
		return false
	}
	delete(d.subscriptions, chatID)
	return true
}

// Filter returns the chat's filter, or "" when it is not subscribed.
func (d *AlertDispatcher) Filter(chatID int64) alertFilter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subscriptions[chatID]
}

func (d *AlertDispatcher) IsSubscribed(chatID int64) bool {
	return d.Filter(chatID) != ""
}

func (d *AlertDispatcher) SubscriberCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subscriptions)
}

// NotifyDecisions delivers one cycle. Chats on the changes filter are skipped
// when the cycle's calls match the previous one. A nil dispatcher is a no-op so
// the poller can run without a bot.
func (d *AlertDispatcher) NotifyDecisions(ctx context.Context, decisions []domain.ModelDecision) error {
	if d == nil || d.sender == nil || len(decisions) == 0 {
		return nil
	}

	recipients := d.recipients(decisionDigest(decisions))
	if len(recipients) == 0 {
		return nil
	}

	msg := formatAlertMessage(decisions)
	var errs []error
	for _, chatID := range recipients {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		_, err := d.sender.Send(&tele.Chat{ID: chatID}, msg)
		if err == nil {
			continue
		}
		if unreachableChat(err) {
			d.Unsubscribe(chatID)
			log.Printf("alerts: dropped chat %d: %v", chatID, err)
			continue
		}
		errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
	}
	return errors.Join(errs...)
}

// recipients records digest as the latest cycle and returns the chats that
// should receive it in ascending order.
func (d *AlertDispatcher) recipients(digest string) []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	changed := digest != d.lastDigest
	d.lastDigest = digest

	out := make([]int64, 0, len(d.subscriptions))
	for chatID, filter := range d.subscriptions {
		if filter == filterChanges && !changed {
			continue
		}
		out = append(out, chatID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func unreachableChat(err error) bool {
	return errors.Is(err, tele.ErrBlockedByUser) ||
		errors.Is(err, tele.ErrChatNotFound) ||
		errors.Is(err, tele.ErrKickedFromGroup)
}

// decisionDigest keys a cycle by each model's symbol and action. Confidence
// and rationale drift are not treated as a change.
func decisionDigest(decisions []domain.ModelDecision) string {
	parts := make([]string, 0, len(decisions))
	for _, d := range decisions {
		parts = append(parts, d.Model+"="+d.Decision.Symbol+":"+string(d.Decision.Action))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

type alertCommand struct {
	op     string
	filter alertFilter
}

// parseAlertCommand maps /alerts arguments. No argument means status.
func parseAlertCommand(args []string) (alertCommand, error) {
	if len(args) == 0 {
		return alertCommand{op: "status"}, nil
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "on", "all":
		return alertCommand{op: "on", filter: filterEvery}, nil
	case "changes":
		return alertCommand{op: "on", filter: filterChanges}, nil
	case "off":
		return alertCommand{op: "off"}, nil
	case "status":
		return alertCommand{op: "status"}, nil
	default:
		return alertCommand{}, fmt.Errorf("unknown alerts option %q", args[0])
	}
}

// formatAlertMessage groups a cycle by action so split votes read at a glance.
func formatAlertMessage(decisions []domain.ModelDecision) string {
	var b strings.Builder
	b.WriteString("Decision cycle")
	if at := decisions[0].DecidedAt; !at.IsZero() {
		b.WriteString(" @ " + at.UTC().Format("2006-01-02 15:04 UTC"))
	}
	b.WriteString("\n")

	groups := make(map[domain.DecisionAction][]domain.ModelDecision)
	actions := make([]domain.DecisionAction, 0, 3)
	for _, d := range decisions {
		if _, seen := groups[d.Decision.Action]; !seen {
			actions = append(actions, d.Decision.Action)
		}
		groups[d.Decision.Action] = append(groups[d.Decision.Action], d)
	}

	for _, action := range actions {
		fmt.Fprintf(&b, "%s (%d)\n", strings.ToUpper(string(action)), len(groups[action]))
		for _, d := range groups[action] {
			b.WriteString("  " + formatDecision(d) + "\n")
		}
	}

	if len(decisions) > 1 {
		if domain.DecisionsAgree(decisions) {
			b.WriteString("Consensus: all models agree.")
		} else {
			b.WriteString("Consensus: split.")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDecision(d domain.ModelDecision) string {
	symbol := d.Decision.Symbol
	if symbol == "" {
		symbol = "-"
	}
	line := fmt.Sprintf("%s %s %.0f%%", d.Model, symbol, d.Decision.Confidence*100)
	if r := strings.TrimSpace(d.Decision.Rationale); r != "" {
		line += ": " + r
	}
	return line
}
