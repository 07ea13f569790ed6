// Package notify pushes lamp notifications to Telegram and accepts a
// small command set back from allowlisted chats.
package notify

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"lampd/internal/adapter"
	"lampd/internal/node"
	"lampd/internal/zcl/clusters"
)

// Config holds Telegram bot settings.
type Config struct {
	BotToken string
	ChatIDs  []int64
}

// Bot is the Telegram front end of the lamp. Send satisfies the
// automation engine's Notifier interface.
type Bot struct {
	api     *tgbotapi.BotAPI
	chatIDs []int64
	node    *node.Node
	adapter *adapter.Adapter
	logger  *slog.Logger

	outbox   chan string
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New authenticates against the Telegram API. It does not start
// polling for updates; call Start for that.
func New(cfg Config, n *node.Node, a *adapter.Adapter, logger *slog.Logger) (*Bot, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram: bot token is empty")
	}
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}

	return &Bot{
		api:     api,
		chatIDs: cfg.ChatIDs,
		node:    n,
		adapter: a,
		logger:  logger,
		outbox:  make(chan string, 32),
		done:    make(chan struct{}),
	}, nil
}

// Start launches the outgoing send loop and the update poller.
func (b *Bot) Start() {
	b.wg.Add(2)
	go b.sendLoop()
	go b.updateLoop()

	b.node.Events().Emit(node.Event{Type: node.EventConnectivity, Data: map[string]interface{}{
		"transport": "telegram",
		"connected": true,
	}})
	b.logger.Info("telegram bot started", "account", b.api.Self.UserName, "chats", len(b.chatIDs))
}

// Stop halts polling and waits for both loops to exit.
func (b *Bot) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.api.StopReceivingUpdates()
	})
	b.wg.Wait()

	b.node.Events().Emit(node.Event{Type: node.EventConnectivity, Data: map[string]interface{}{
		"transport": "telegram",
		"connected": false,
	}})
	b.logger.Info("telegram bot stopped")
}

// Send queues a notification for every allowlisted chat. It never
// blocks; when the outbox is full the message is dropped.
func (b *Bot) Send(text string) {
	select {
	case b.outbox <- text:
	default:
		b.logger.Warn("telegram outbox full, dropping message")
	}
}

func (b *Bot) sendLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case text := <-b.outbox:
			for _, chat := range b.chatIDs {
				if _, err := b.api.Send(tgbotapi.NewMessage(chat, text)); err != nil {
					b.logger.Warn("telegram send", "chat", chat, "err", err)
				}
			}
		}
	}
}

func (b *Bot) updateLoop() {
	defer b.wg.Done()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	// The channel closes when StopReceivingUpdates is called.
	for update := range b.api.GetUpdatesChan(u) {
		if update.Message == nil {
			continue
		}
		chatID := update.Message.Chat.ID
		if !b.allowed(chatID) {
			b.logger.Warn("telegram message from unknown chat", "chat", chatID)
			continue
		}

		reply := b.handleCommand(update.Message.Text)
		if reply == "" {
			continue
		}
		if _, err := b.api.Send(tgbotapi.NewMessage(chatID, reply)); err != nil {
			b.logger.Warn("telegram reply", "chat", chatID, "err", err)
		}
	}
}

func (b *Bot) allowed(chatID int64) bool {
	for _, id := range b.chatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

const helpText = `lamp commands:
/status - current state
/on /off /toggle - power
/bri <0..254> - brightness
/ct <kelvin> - white color temperature
/color <hue> <sat> - hue 0..359, saturation 0..100
/identify - blink the lamp`

// handleCommand maps a chat message to a lamp action and returns the
// reply text. Unrecognized messages return "" so the bot stays quiet
// in group chats.
func (b *Bot) handleCommand(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	cmd := fields[0]
	// Group chats address commands as /on@botname.
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	args := fields[1:]

	var err error
	switch cmd {
	case "/start", "/help":
		return helpText

	case "/status":
		return b.statusText()

	case "/on":
		err = b.invoke(clusters.IDOnOff, clusters.CmdOn, nil)
	case "/off":
		err = b.invoke(clusters.IDOnOff, clusters.CmdOff, nil)
	case "/toggle":
		err = b.invoke(clusters.IDOnOff, clusters.CmdToggle, nil)

	case "/bri":
		v, ok := intArg(args, 0, 0, 254)
		if !ok {
			return "usage: /bri <0..254>"
		}
		err = b.invoke(clusters.IDLevelControl, clusters.CmdMoveToLevelWithOnOff,
			map[string]interface{}{"level": v})

	case "/ct":
		v, ok := intArg(args, 0, 1000, 40000)
		if !ok {
			return "usage: /ct <kelvin>, e.g. /ct 2700"
		}
		err = b.invoke(clusters.IDColorControl, clusters.CmdMoveToColorTemperature,
			map[string]interface{}{"mireds": adapter.KelvinToMireds(uint32(v))})

	case "/color":
		hue, hok := intArg(args, 0, 0, 359)
		sat, sok := intArg(args, 1, 0, 100)
		if !hok || !sok {
			return "usage: /color <hue 0..359> <sat 0..100>"
		}
		err = b.invoke(clusters.IDColorControl, clusters.CmdMoveToHueAndSaturation,
			map[string]interface{}{
				"hue":        int(adapter.RemapRange(uint32(hue), 359, 254)),
				"saturation": int(adapter.RemapRange(uint32(sat), 100, 254)),
			})

	case "/identify":
		err = b.invoke(clusters.IDIdentify, clusters.CmdIdentify,
			map[string]interface{}{"time": 3})

	default:
		return ""
	}

	if err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}

func intArg(args []string, i, lo, hi int) (int, bool) {
	if i >= len(args) {
		return 0, false
	}
	v, err := strconv.Atoi(args[i])
	if err != nil || v < lo || v > hi {
		return 0, false
	}
	return v, true
}

func (b *Bot) invoke(cluster uint16, cmd uint8, payload map[string]interface{}) error {
	return b.node.Invoke(1, cluster, cmd, payload, "telegram")
}

func (b *Bot) statusText() string {
	props := b.adapter.Properties()

	power := "off"
	if on, _ := props["state"].(bool); on {
		power = "on"
	}
	lines := []string{"lamp: " + power}

	if bri, ok := props["brightness"].(uint8); ok {
		lines = append(lines, fmt.Sprintf("brightness: %d/254", bri))
	}
	switch props["color_mode"] {
	case "color_temp":
		if mireds, ok := props["color_temp"].(uint16); ok {
			lines = append(lines, fmt.Sprintf("white: %dK", adapter.MiredsToKelvin(mireds)))
		}
	case "hs":
		if c, ok := props["color"].(map[string]interface{}); ok {
			lines = append(lines, fmt.Sprintf("color: hue %v, sat %v%%", c["h"], c["s"]))
		}
	}
	lines = append(lines, "uptime: "+b.node.Uptime().Round(time.Second).String())

	return strings.Join(lines, "\n")
}
