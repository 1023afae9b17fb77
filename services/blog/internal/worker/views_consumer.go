package worker

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/example/blog-platform/internal/platform/events"
	"github.com/example/blog-platform/services/blog/internal/store"
)

// ViewApplier is the slice of the post store the consumer needs.
type ViewApplier interface {
	AddViews(ctx context.Context, postID string, delta int) error
}

// EventMarker deduplicates events across restarts. Nil disables dedupe,
// which is fine for the in-memory store.
type EventMarker interface {
	// MarkProcessed records the event id, reporting false when it was
	// already recorded.
	MarkProcessed(ctx context.Context, eventID, subject string, payload []byte) (bool, error)
}

// StartViewsConsumer subscribes to blog.posts.viewed and folds the events
// into per-post deltas before touching the counter. One UPDATE per post per
// batch instead of one per page view.
func StartViewsConsumer(ctx context.Context, nc *nats.Conn, applier ViewApplier, marker EventMarker) {
	js, err := nc.JetStream()
	if err != nil {
		log.Printf("views_consumer: jetstream error: %v", err)
		return
	}

	sub, err := js.PullSubscribe(events.SubjectPostViewed, "blog_views")
	if err != nil {
		log.Printf("views_consumer: subscribe error: %v", err)
		return
	}

	go func() {
		batchSize := envInt("WORKER_BATCH_SIZE", 100)
		batchInterval := envInt("WORKER_BATCH_INTERVAL_MS", 2000)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msgs, err := sub.Fetch(batchSize, nats.MaxWait(time.Duration(batchInterval)*time.Millisecond))
			if err != nil {
				if err == nats.ErrTimeout {
					continue
				}
				log.Printf("views_consumer: fetch error: %v", err)
				time.Sleep(1 * time.Second)
				continue
			}
			if len(msgs) == 0 {
				continue
			}

			deltas, err := foldViews(ctx, msgs, marker)
			if err != nil {
				log.Printf("views_consumer: batch failed: %v", err)
				nakAll(msgs)
				continue
			}

			failed := false
			for postID, delta := range deltas {
				if err := applier.AddViews(ctx, postID, delta); err != nil {
					// A deleted post is not worth a redelivery loop.
					if err == store.ErrNotFound {
						continue
					}
					log.Printf("views_consumer: apply %s: %v", postID, err)
					failed = true
					break
				}
			}
			if failed {
				nakAll(msgs)
				continue
			}

			for _, m := range msgs {
				if err := m.Ack(); err != nil {
					log.Printf("views_consumer: ack error: %v", err)
				}
			}
		}
	}()
}

// foldViews aggregates a batch into per-post deltas, skipping events the
// marker has already seen.
func foldViews(ctx context.Context, msgs []*nats.Msg, marker EventMarker) (map[string]int, error) {
	deltas := make(map[string]int)
	for _, m := range msgs {
		var ev events.Event
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			log.Printf("views_consumer: invalid json, dropping: %v", err)
			continue
		}
		postID, _ := ev.Properties["post_id"].(string)
		if postID == "" {
			continue
		}
		if marker != nil {
			fresh, err := marker.MarkProcessed(ctx, ev.EventID, events.SubjectPostViewed, m.Data)
			if err != nil {
				return nil, err
			}
			if !fresh {
				continue
			}
		}
		deltas[postID]++
	}
	return deltas, nil
}

func nakAll(msgs []*nats.Msg) {
	for _, m := range msgs {
		if err := m.Nak(); err != nil {
			log.Printf("views_consumer: nak error: %v", err)
		}
	}
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
