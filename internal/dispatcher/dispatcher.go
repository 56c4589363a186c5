// Package dispatcher verifies LINE webhook deliveries and routes each event
// to the handler for its kind, replying through the platform client.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memohai/linebot/internal/ai"
	"github.com/memohai/linebot/internal/collab"
	"github.com/memohai/linebot/internal/command"
	"github.com/memohai/linebot/internal/line"
	"github.com/memohai/linebot/internal/logger"
	"github.com/memohai/linebot/internal/media"
)

var (
	ErrBadRequest       = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrInternalDispatch = errors.New("internal dispatch failure")
)

// Replier sends the single reply permitted for a reply token.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

// TextProcessor turns a text message into a reply.
type TextProcessor interface {
	Process(userID, text string) (string, bool)
}

// ContentFetcher downloads the bytes of an image or file message.
type ContentFetcher interface {
	FetchContent(ctx context.Context, messageID string, maxBytes int64) (line.Content, error)
}

// Ingester stores attachments.
type Ingester interface {
	Ingest(ctx context.Context, input media.IngestInput) (media.Asset, error)
}

// Analyzer reads receipt images.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, image []byte) (ai.ReceiptAnalysis, error)
}

// Deps are the collaborators of a Dispatcher. Replier and Commands are
// required; the attachment collaborators are optional.
type Deps struct {
	Replier  Replier
	Commands TextProcessor
	Fetcher  ContentFetcher
	Media    Ingester
	Analyzer Analyzer
}

type Options struct {
	ChannelSecret string
	// Policy is checked against file metadata before any download.
	Policy media.Policy
	// EventTimeout bounds the handling of a single event, reply excluded.
	EventTimeout time.Duration
	// ReplyTimeout bounds the reply send. It starts after handling ends, so
	// an apology still goes out when handling ran out of time.
	ReplyTimeout time.Duration
}

// DefaultReplyTimeout applies when Options.ReplyTimeout is zero.
const DefaultReplyTimeout = 10 * time.Second

type Dispatcher struct {
	secret       string
	policy       media.Policy
	eventTimeout time.Duration
	replyTimeout time.Duration
	deps         Deps
	logger       *slog.Logger
	now          func() time.Time
}

func New(log *slog.Logger, opts Options, deps Deps) (*Dispatcher, error) {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(opts.ChannelSecret) == "" {
		return nil, errors.New("channel secret is required")
	}
	if deps.Replier == nil || deps.Commands == nil {
		return nil, errors.New("replier and text processor are required")
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = DefaultReplyTimeout
	}
	return &Dispatcher{
		secret:       opts.ChannelSecret,
		policy:       opts.Policy,
		eventTimeout: opts.EventTimeout,
		replyTimeout: opts.ReplyTimeout,
		deps:         deps,
		logger:       log.With(slog.String("service", "dispatcher")),
		now:          time.Now,
	}, nil
}

// HandleWebhook verifies rawBody against signature, then handles every event
// in order. Once the body is verified and decoded it returns nil regardless of
// how individual events fare.
func (d *Dispatcher) HandleWebhook(ctx context.Context, rawBody []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrBadRequest
	}
	if !line.VerifySignature(d.secret, rawBody, signature) {
		return ErrInvalidSignature
	}

	env, err := d.decode(ctx, rawBody)
	if err != nil {
		return err
	}

	deliveryID := uuid.NewString()
	log := d.logger.With(slog.String("delivery_id", deliveryID))
	logger.Log(ctx, log, slog.LevelInfo, "webhook received", map[string]any{
		"destination": env.Destination,
		"events":      len(env.Events),
	})
	for i, ev := range env.Events {
		d.dispatch(ctx, log.With(slog.Int("event_index", i)), ev)
	}
	return nil
}

func (d *Dispatcher) decode(ctx context.Context, rawBody []byte) (env line.Envelope, err error) {
	defer func() {
		if r := recover(); r != nil {
			perr := fmt.Errorf("%w: %v", ErrInternalDispatch, r)
			logger.ErrorWithStack(ctx, d.logger, "envelope decoding panicked", perr, debug.Stack(), nil)
			env, err = line.Envelope{}, perr
		}
	}()
	env, err = line.ParseEnvelope(rawBody)
	if err != nil {
		d.logger.Warn("rejecting malformed webhook body", slog.Any("error", err), slog.Int("body_size", len(rawBody)))
		return line.Envelope{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return env, nil
}

// dispatch handles one event and sends its reply. Failures are logged and
// turned into the apology reply; nothing escapes to the caller.
func (d *Dispatcher) dispatch(ctx context.Context, log *slog.Logger, ev line.Event) {
	src := ev.Origin()
	log = log.With(slog.String("kind", string(ev.Kind())), slog.String("user_id", src.UserID))

	// Request cancellation must not cut an event short; LINE redelivers on its own.
	ctx = context.WithoutCancel(ctx)

	start := d.now()
	reply, ok, err := d.handleWithTimeout(ctx, log, ev)
	if err != nil {
		logger.Error(ctx, log, "event handling failed", err, map[string]any{
			"collaborator": collab.IsCollaborator(err),
		})
		reply, ok = command.ErrorReply, true
	}
	if !ok {
		log.Debug("event ignored")
		return
	}
	if err := d.send(ctx, log, src.ReplyToken, reply); err != nil {
		logger.Error(ctx, log, "reply failed", err, nil)
		return
	}
	log.Info("event handled", slog.Duration("duration", d.now().Sub(start)))
}

func (d *Dispatcher) handleWithTimeout(ctx context.Context, log *slog.Logger, ev line.Event) (string, bool, error) {
	if d.eventTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.eventTimeout)
		defer cancel()
	}
	return d.handle(ctx, log, ev)
}

// send delivers reply on its own deadline. A panicking replier is reported as
// an error so the remaining events still run.
func (d *Dispatcher) send(ctx context.Context, log *slog.Logger, replyToken, reply string) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.replyTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("replier panic: %v", r)
			logger.ErrorWithStack(ctx, log, "reply panicked", err, debug.Stack(), nil)
		}
	}()
	return d.deps.Replier.Reply(ctx, replyToken, reply)
}

func (d *Dispatcher) handle(ctx context.Context, log *slog.Logger, ev line.Event) (reply string, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			perr := fmt.Errorf("event handler panic: %v", r)
			logger.ErrorWithStack(ctx, log, "event handler panicked", perr, debug.Stack(), nil)
			reply, ok, err = command.ErrorReply, true, nil
		}
	}()

	switch e := ev.(type) {
	case line.TextEvent:
		reply, ok = d.deps.Commands.Process(e.UserID, e.Text)
		return reply, ok, nil
	case line.ImageEvent:
		if err := d.handleImage(ctx, log, e); err != nil {
			return "", false, err
		}
		return command.ImageReceivedReply, true, nil
	case line.FileEvent:
		if err := d.handleFile(ctx, log, e); err != nil {
			return "", false, err
		}
		return command.FileReceivedReply(e.FileName), true, nil
	default:
		return "", false, nil
	}
}

func (d *Dispatcher) handleImage(ctx context.Context, log *slog.Logger, e line.ImageEvent) error {
	if d.deps.Fetcher == nil || (d.deps.Media == nil && d.deps.Analyzer == nil) {
		return nil
	}
	content, err := d.deps.Fetcher.FetchContent(ctx, e.MessageID, d.policy.Limit())
	if err != nil {
		if errors.Is(err, media.ErrAssetTooLarge) {
			log.Warn("image exceeds size limit; skipped", slog.Any("error", err))
			return nil
		}
		return downstream("line", "fetch image", err)
	}

	if err := d.store(ctx, log, media.MediaTypeImage, e.Source, "", content); err != nil {
		return err
	}

	if d.deps.Analyzer == nil {
		return nil
	}
	analysis, err := d.deps.Analyzer.AnalyzeImage(ctx, content.Data)
	switch {
	case errors.Is(err, collab.ErrNotConfigured):
		log.Debug("receipt analysis skipped; ai not configured")
	case err != nil:
		return downstream("openai", "analyze image", err)
	default:
		log.Info("receipt analyzed",
			slog.String("status", analysis.Status),
			slog.Float64("total_amount", analysis.ExtractedData.TotalAmount),
			slog.String("date", analysis.ExtractedData.Date),
			slog.Float64("confidence", analysis.Confidence),
		)
	}
	return nil
}

func (d *Dispatcher) handleFile(ctx context.Context, log *slog.Logger, e line.FileEvent) error {
	if d.deps.Fetcher == nil || d.deps.Media == nil {
		return nil
	}
	if err := d.policy.Check(e.FileName, e.FileSize); err != nil {
		log.Warn("file rejected by upload policy", slog.String("file_name", e.FileName), slog.Any("error", err))
		return nil
	}
	content, err := d.deps.Fetcher.FetchContent(ctx, e.MessageID, d.policy.Limit())
	if err != nil {
		if errors.Is(err, media.ErrAssetTooLarge) {
			log.Warn("file exceeds size limit; skipped", slog.String("file_name", e.FileName))
			return nil
		}
		return downstream("line", "fetch file", err)
	}
	return d.store(ctx, log, media.MediaTypeFile, e.Source, e.FileName, content)
}

// store uploads content. Missing storage and policy rejections are logged and
// skipped; other storage failures are returned.
func (d *Dispatcher) store(ctx context.Context, log *slog.Logger, kind media.MediaType, src line.Source, name string, content line.Content) error {
	if d.deps.Media == nil {
		return nil
	}
	receivedAt := src.Timestamp
	if receivedAt.IsZero() {
		receivedAt = d.now()
	}
	_, err := d.deps.Media.Ingest(ctx, media.IngestInput{
		MediaType:    kind,
		UserID:       src.UserID,
		OriginalName: name,
		Mime:         content.ContentType,
		Data:         content.Data,
		ReceivedAt:   receivedAt,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, collab.ErrNotConfigured), errors.Is(err, media.ErrProviderUnavailable):
		log.Debug("upload skipped; storage not configured")
		return nil
	case errors.Is(err, media.ErrAssetTooLarge), errors.Is(err, media.ErrExtensionNotAllowed):
		log.Warn("upload rejected by policy", slog.Any("error", err))
		return nil
	default:
		return downstream("onedrive", "upload "+string(kind), err)
	}
}

// downstream tags err with the step that produced it. Errors that already
// carry a collaborator context only gain the step name; bare context
// deadlines and cancellations are attributed to the service being called.
func downstream(service, op string, err error) error {
	if collab.IsCollaborator(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &collab.Error{Service: service, Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
