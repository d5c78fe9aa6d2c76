package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const roomChangesChannel = "rooms:changed"

// RoomFeed carries "rooms table changed" notifications between processes.
type RoomFeed struct {
	client *redis.Client
}

func NewRoomFeed(client *redis.Client) *RoomFeed {
	return &RoomFeed{client: client}
}

// Notify announces a change. Failures are logged; the registry's periodic
// resync covers lost notifications.
func (f *RoomFeed) Notify(ctx context.Context, table string) {
	if err := f.client.Publish(ctx, roomChangesChannel, table).Err(); err != nil {
		log.Warn().Str("module", "registry").Err(err).Msg("failed to publish room change")
	}
}

// Subscribe returns a channel of change notifications that is closed when
// ctx is done.
func (f *RoomFeed) Subscribe(ctx context.Context) <-chan string {
	sub := f.client.Subscribe(ctx, roomChangesChannel)
	out := make(chan string, 1)

	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				default:
					// a refresh is already pending
				}
			}
		}
	}()

	return out
}
