package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ragrelay/server/internal/agent/model"
	"github.com/ragrelay/server/internal/ratelimit"
	"github.com/ragrelay/server/internal/voice"
	logx "github.com/ragrelay/server/pkg/logger"
)

// turnOperation keys the per-user sliding window for turn admission.
const turnOperation = "turn"

// Config holds the relay's stream topology.
type Config struct {
	Stream         string `envconfig:"RELAY_STREAM" default:"msg:inbound"`
	Group          string `envconfig:"RELAY_GROUP" default:"agent-workers"`
	Consumer       string `envconfig:"RELAY_CONSUMER" default:"worker-1"`
	ResponsePrefix string `envconfig:"RELAY_RESPONSE_PREFIX" default:"response:"`
	BlockSeconds   int    `envconfig:"RELAY_BLOCK_SECONDS" default:"5"`
}

// TurnRunner drives one conversation turn to its terminal state.
type TurnRunner interface {
	Run(ctx context.Context, in model.TurnInput) (model.TurnResult, error)
}

// Worker consumes inbound envelopes from a Redis stream consumer group, runs
// each through the orchestrator behind rate-limit admission, and publishes
// the result on the thread's response channel. Messages are claimed one at a
// time, and the orchestrator serializes turns per thread, so two messages
// for the same thread never mutate the same state concurrently.
type Worker struct {
	rdb     *redis.Client
	runner  TurnRunner
	limiter *ratelimit.Limiter
	voice   *voice.Engine
	cfg     Config
}

func NewWorker(rdb *redis.Client, runner TurnRunner, limiter *ratelimit.Limiter, voiceEngine *voice.Engine, cfg Config) *Worker {
	return &Worker{
		rdb:     rdb,
		runner:  runner,
		limiter: limiter,
		voice:   voiceEngine,
		cfg:     cfg,
	}
}

// EnsureGroup creates the consumer group, tolerating an existing one.
func (w *Worker) EnsureGroup(ctx context.Context) error {
	err := w.rdb.XGroupCreateMkStream(ctx, w.cfg.Stream, w.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Run blocks consuming the inbound stream until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	logx.Info().
		Str("stream", w.cfg.Stream).
		Str("group", w.cfg.Group).
		Str("consumer", w.cfg.Consumer).
		Msg("Relay worker started")

	block := time.Duration(w.cfg.BlockSeconds) * time.Second
	for {
		if ctx.Err() != nil {
			logx.Info().Msg("Relay worker stopping")
			return
		}

		streams, err := w.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    w.cfg.Group,
			Consumer: w.cfg.Consumer,
			Streams:  []string{w.cfg.Stream, ">"},
			Count:    1,
			Block:    block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logx.Error().Err(err).Msg("Error reading inbound stream")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				w.handle(ctx, msg)
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg redis.XMessage) {
	defer w.ack(ctx, msg.ID)

	raw, ok := msg.Values["envelope"].(string)
	if !ok {
		logx.Warn().Str("stream_id", msg.ID).Msg("Inbound entry missing envelope field; dropping")
		return
	}

	var in InboundMessage
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		logx.Warn().Err(err).Str("stream_id", msg.ID).Msg("Failed to unmarshal inbound envelope; dropping")
		return
	}
	if err := in.Validate(); err != nil {
		logx.Warn().Err(err).Str("stream_id", msg.ID).Msg("Invalid inbound envelope; dropping")
		return
	}

	logx.Debug().
		Str("message_id", in.MessageID).
		Str("thread_id", in.ThreadID).
		Str("channel", string(in.Channel)).
		Msg("Processing inbound message")

	if w.limiter != nil {
		decision, err := w.limiter.Check(ctx, in.UserID, turnOperation)
		if err != nil {
			// Fail-closed store outage: reject rather than guess.
			logx.Error().Err(err).Str("user_id", in.UserID).Msg("Rate limit check failed")
			w.publish(ctx, in.ThreadID, OutboundMessage{
				ThreadID: in.ThreadID,
				Type:     OutboundTypeError,
				Text:     "Sorry, I cannot take your message right now. Please try again shortly.",
			})
			return
		}
		if !decision.Allowed {
			logx.Info().
				Str("user_id", in.UserID).
				Time("reset_at", decision.ResetAt).
				Msg("Turn rejected by rate limiter")
			w.publish(ctx, in.ThreadID, OutboundMessage{
				ThreadID: in.ThreadID,
				Type:     OutboundTypeRateLimited,
				Text:     "You are sending messages too quickly. Please wait a moment.",
			})
			return
		}
	}

	result, err := w.runner.Run(ctx, model.TurnInput{
		ThreadID:    in.ThreadID,
		Text:        in.Text,
		Channel:     in.Channel,
		UserContext: in.UserContext,
	})
	if err != nil {
		logx.Error().Err(err).Str("thread_id", in.ThreadID).Msg("Turn failed")
		w.publish(ctx, in.ThreadID, OutboundMessage{
			ThreadID: in.ThreadID,
			Type:     OutboundTypeError,
			Text:     "Sorry, something went wrong while handling your message. Please try again.",
		})
		return
	}

	out := OutboundMessage{
		ThreadID:     result.ThreadID,
		Type:         OutboundTypeMessage,
		Text:         result.Text,
		RequiresAuth: result.RequiresAuth,
	}

	if w.voice != nil && result.Text != "" {
		decision := w.voice.Evaluate(voice.EvaluateInput{
			Text:     result.Text,
			Platform: string(in.Channel),
			Profile:  voice.Profile{Language: in.UserContext.Language},
		})
		if decision.Type == voice.DecisionProceed {
			out.Voice = &VoiceHint{
				Provider:   decision.Provider,
				Fallbacks:  decision.Fallbacks,
				Confidence: decision.Confidence,
			}
		}
	}

	w.publish(ctx, in.ThreadID, out)
}

func (w *Worker) publish(ctx context.Context, threadID string, out OutboundMessage) {
	if out.MessageID == "" {
		out.MessageID = uuid.NewString()
	}
	out.Timestamp = time.Now().UTC()

	data, err := json.Marshal(out)
	if err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("Failed to marshal outbound message")
		return
	}

	channel := w.cfg.ResponsePrefix + threadID
	if err := w.rdb.Publish(ctx, channel, string(data)).Err(); err != nil {
		logx.Error().Err(err).Str("channel", channel).Msg("Failed to publish outbound message")
	}
}

func (w *Worker) ack(ctx context.Context, id string) {
	if err := w.rdb.XAck(ctx, w.cfg.Stream, w.cfg.Group, id).Err(); err != nil {
		logx.Error().Err(err).Str("stream_id", id).Msg("Failed to ack inbound entry")
	}
}
