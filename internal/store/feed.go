package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/sketchdash/client/internal/obslog"
)

const (
	feedChanRoom   = "room_change"
	feedChanStroke = "stroke_append"
)

// RoomChange is a change-feed notification for the rooms table.
type RoomChange struct {
	RoomCode string `json:"room_id"`
	HostID   string `json:"host_id"`
	Active   bool   `json:"is_active"`
	Deleted  bool   `json:"deleted"`
}

// StrokeAppend is a change-feed notification for an appended stroke.
type StrokeAppend struct {
	ID      int64  `json:"id"`
	RoundID string `json:"round_id"`
	Path    string `json:"path"`
	Erase   bool   `json:"erase"`
}

// FeedEvent is either a *RoomChange or a *StrokeAppend.
type FeedEvent interface{ feedEvent() }

func (*RoomChange) feedEvent()   {}
func (*StrokeAppend) feedEvent() {}

// Feed replicates room and stroke writes to this client via Postgres
// LISTEN/NOTIFY. Delivery is at-least-once in commit order per writer;
// consumers must be idempotent.
type Feed struct {
	listener *pq.Listener
	events   chan FeedEvent
	done     chan struct{}
}

func NewFeed(databaseURL string) (*Feed, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	f := &Feed{
		events: make(chan FeedEvent, 256),
		done:   make(chan struct{}),
	}
	f.listener = pq.NewListener(databaseURL, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			obslog.L().Warn("feed_listener_event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := f.listener.Listen(feedChanRoom); err != nil {
		_ = f.listener.Close()
		return nil, err
	}
	if err := f.listener.Listen(feedChanStroke); err != nil {
		_ = f.listener.Close()
		return nil, err
	}
	go f.run()
	return f, nil
}

// Events returns the ordered notification stream. The channel closes when the
// feed is closed.
func (f *Feed) Events() <-chan FeedEvent { return f.events }

func (f *Feed) run() {
	defer close(f.events)
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-f.done:
			return
		case <-ping.C:
			// keeps the connection alive and forces reconnect detection
			go func() { _ = f.listener.Ping() }()
		case n, ok := <-f.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// reconnect marker; notifications may have been missed
				obslog.L().Debug("feed_reconnected")
				continue
			}
			ev := decodeFeedPayload(n.Channel, n.Extra)
			if ev == nil {
				continue
			}
			select {
			case f.events <- ev:
			case <-f.done:
				return
			}
		}
	}
}

func decodeFeedPayload(channel, extra string) FeedEvent {
	switch channel {
	case feedChanRoom:
		var rc RoomChange
		if err := json.Unmarshal([]byte(extra), &rc); err != nil {
			obslog.L().Warn("feed_bad_payload", zap.String("channel", channel), zap.Error(err))
			return nil
		}
		return &rc
	case feedChanStroke:
		var sa StrokeAppend
		if err := json.Unmarshal([]byte(extra), &sa); err != nil {
			obslog.L().Warn("feed_bad_payload", zap.String("channel", channel), zap.Error(err))
			return nil
		}
		return &sa
	default:
		return nil
	}
}

func (f *Feed) Close(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	default:
	}
	close(f.done)
	return f.listener.Close()
}
