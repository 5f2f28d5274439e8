package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"polyfolio/internal/application/port"
	"polyfolio/internal/domain/model"
)

// MarketEventFeed streams market update events (status changes, outcome
// price moves) over a websocket, reconnecting with backoff. Poll loops stay
// the source of truth; the feed only makes settlement visible sooner.
type MarketEventFeed struct {
	wsURL string
}

func NewMarketEventFeed(wsURL string) *MarketEventFeed {
	return &MarketEventFeed{wsURL: strings.TrimSpace(wsURL)}
}

func (f *MarketEventFeed) Name() string { return "polymarket-market-events" }

type wsSubReq struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel"`
	Markets []string `json:"markets"`
}

type wsMarketMsg struct {
	EventType string           `json:"event_type"`
	Market    string           `json:"market"`
	Status    string           `json:"status"`
	Outcomes  []outcomePayload `json:"outcomes"`
	Ts        int64            `json:"timestamp"`
}

func (f *MarketEventFeed) Subscribe(ctx context.Context, marketIDs []string) (<-chan model.MarketUpdate, error) {
	if f.wsURL == "" {
		return nil, errors.New("market feed wsURL empty")
	}
	if len(marketIDs) == 0 {
		return nil, errors.New("marketIDs empty")
	}

	out := make(chan model.MarketUpdate, 256)
	go f.run(ctx, marketIDs, out)
	return out, nil
}

func (f *MarketEventFeed) run(ctx context.Context, marketIDs []string, out chan<- model.MarketUpdate) {
	defer close(out)

	backoff := 500 * time.Millisecond
	maxBackoff := 10 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, f.wsURL, nil)
		cancel()
		if err != nil {
			log.Error().Str("feed", f.Name()).Err(err).Msg("ws dial failed")
			time.Sleep(backoff)
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}

		backoff = 500 * time.Millisecond
		log.Info().Str("feed", f.Name()).Int("markets", len(marketIDs)).Msg("ws connected")

		sub := wsSubReq{Type: "subscribe", Channel: "market", Markets: marketIDs}
		if b, err := json.Marshal(sub); err == nil {
			_ = conn.WriteMessage(websocket.TextMessage, b)
		}

		err = readLoop(ctx, conn, func(b []byte) {
			var msg wsMarketMsg
			if e := json.Unmarshal(b, &msg); e != nil {
				log.Error().Str("feed", f.Name()).Err(e).Msg("json unmarshal failed")
				return
			}
			if msg.Market == "" {
				return
			}

			outcomes := make([]model.OutcomeRef, 0, len(msg.Outcomes))
			for _, o := range msg.Outcomes {
				outcomes = append(outcomes, o.toRef())
			}
			ts := msg.Ts
			if ts == 0 {
				ts = time.Now().UnixMilli()
			}

			deliver(ctx, out, model.MarketUpdate{
				MarketID: msg.Market,
				Status:   msg.Status,
				Outcomes: outcomes,
				Ts:       ts,
			})
		})

		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		log.Warn().Str("feed", f.Name()).Err(err).Msg("ws disconnected, reconnecting")
		time.Sleep(backoff)
		backoff = minDur(backoff*2, maxBackoff)
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, onMsg func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(25 * time.Second)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err == nil {
				_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			}
			if err != nil {
				errCh <- err
				return
			}
			onMsg(b)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

// deliver pushes an update unless the subscription is gone; a full buffer
// with a departed consumer must not wedge the reader goroutine.
func deliver(ctx context.Context, out chan<- model.MarketUpdate, u model.MarketUpdate) bool {
	select {
	case out <- u:
		return true
	case <-ctx.Done():
		return false
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

var _ port.MarketFeed = (*MarketEventFeed)(nil)
