package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"pwm-actuator/internal/input"
	"pwm-actuator/internal/logger"
	"pwm-actuator/internal/types"
)

const (
	CommandList   = "pwm:command"
	StatusHash    = "pwm-actuator"
	StatusChannel = "pwm-actuator"

	brpopTimeout = 5 * time.Second
)

// RedisClient carries commands in from a Redis list and publishes actuator
// status out. Commands are LPUSHed as single characters ("w") or names
// ("stop", "confirm").
type RedisClient struct {
	client *redis.Client
	logger *logger.Logger
	box    *input.Mailbox
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	commandList string
}

func NewRedisClient(host string, port int, l *logger.Logger) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", host, port),
			DB:   0,
		}),
		logger:      l.WithTag("redis"),
		box:         input.NewMailbox(),
		ctx:         ctx,
		cancel:      cancel,
		commandList: CommandList,
	}
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)

	if err := r.client.Ping(r.ctx).Err(); err != nil {
		return fmt.Errorf("Redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis")
	return nil
}

// StartListening starts the list command listener.
func (r *RedisClient) StartListening() error {
	// Commands queued while nobody was listening are stale.
	if n, err := r.client.Del(r.ctx, r.commandList).Result(); err != nil {
		r.logger.Warnf("Failed to clear %s: %v", r.commandList, err)
	} else if n > 0 {
		r.logger.Infof("Discarded stale commands in %s", r.commandList)
	}

	r.wg.Add(1)
	go r.listCommandListener(r.commandList, r.handleCommand)
	return nil
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Infof("Starting list command listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting %s listener", key)
			return
		default:
			// Use BRPOP with a short timeout to allow periodic context cancellation checks
			result, err := r.client.BRPop(r.ctx, brpopTimeout, key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if errors.Is(err, context.Canceled) || r.ctx.Err() != nil {
					r.logger.Infof("Context cancelled, exiting %s listener", key)
					return
				}
				r.logger.Warnf("Error reading from %s list: %v", key, err)
				select {
				case <-r.ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			if len(result) >= 2 { // BRPOP returns [key, value]
				value := result[1]
				r.logger.Debugf("Received command from %s: %s", key, value)
				if err := handler(value); err != nil {
					r.logger.Warnf("Error handling %s command: %v", key, err)
				}
			}
		}
	}
}

func (r *RedisClient) handleCommand(value string) error {
	cmd, err := types.ParseCommandName(value)
	if err != nil {
		return err
	}
	if r.box.Put(cmd) {
		r.logger.Debugf("dropped stale command, latest is %s", cmd)
	}
	return nil
}

// Poll hands the latest command to the control loop.
func (r *RedisClient) Poll() (types.Command, bool) {
	return r.box.Poll()
}

// statusFields flattens a status into the hash layout.
func statusFields(s types.Status) map[string]interface{} {
	fields := map[string]interface{}{
		"mode":      string(s.Mode),
		"pulse":     strconv.Itoa(int(s.Pulse)),
		"pulse:us":  strconv.Itoa(s.Micros),
		"phase":     string(s.Phase),
		"feedback":  s.Feedback.String(),
		"timestamp": s.Time.Format(time.RFC3339),
	}
	if s.Message != "" {
		fields["message"] = s.Message
	}
	return fields
}

// Report writes the status hash and announces it, in one pipeline.
func (r *RedisClient) Report(s types.Status) {
	if s.Time.IsZero() {
		s.Time = time.Now()
	}
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, StatusHash, statusFields(s))
	pipe.Publish(r.ctx, StatusChannel, "status")
	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Warnf("Failed to publish status: %v", err)
		return
	}
	r.logger.Debugf("Published status: mode=%s pulse=%d", s.Mode, s.Pulse)
}

func (r *RedisClient) Close() error {
	r.cancel()
	r.wg.Wait()
	return r.client.Close()
}
