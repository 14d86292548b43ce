package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"server/internal/auth"
	"server/internal/domain"
	"server/internal/solver"
)

const (
	writeTimeout    = 10 * time.Second
	helloTimeout    = 30 * time.Second
	documentTimeout = 60 * time.Second
)

// Handler upgrades solver requests to a websocket session.
type Handler struct {
	Logger    zerolog.Logger
	Validator *auth.Validator
	Pipeline  *solver.Pipeline
	// OnComplete records history and billing after a successful run.
	OnComplete func(ctx context.Context, userID, filename string, res *solver.Result)
	// AllowBareToken accepts a legacy first message holding only the raw
	// token. Off unless the insecure dev flag is set.
	AllowBareToken bool
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.Logger.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	conn.SetReadLimit(64 << 20)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := &session{h: h, conn: conn, cancel: cancel}
	s.run(ctx)

	// The server goes quiet after the final send; teardown belongs to the
	// client. Close only once the client has hung up (or the request
	// context ended).
	s.awaitClientClose(ctx)
	conn.Close(websocket.StatusNormalClosure, "")
}

type session struct {
	h      *Handler
	conn   *websocket.Conn
	cancel context.CancelFunc
	// watching is set once the disconnect watcher owns the read side.
	watching bool
}

func (s *session) run(ctx context.Context) {
	if err := s.info(ctx, "ready"); err != nil {
		return
	}

	hello, err := s.readHello(ctx)
	if err != nil {
		s.fail(ctx, err)
		return
	}

	claims, err := s.h.Validator.Validate(hello.Token)
	if err != nil {
		s.fail(ctx, fmt.Errorf("%w: authentication failed", domain.ErrAuth))
		return
	}
	if err := s.info(ctx, "authenticated"); err != nil {
		return
	}

	document := hello.Inline
	if len(document) == 0 {
		document, err = s.readDocument(ctx, hello.Mode)
		if err != nil {
			s.fail(ctx, err)
			return
		}
	}

	filename := hello.Filename
	if filename == "" {
		filename = "upload.pdf"
	}

	// From here the client sends nothing more; further reads only detect
	// disconnects, which cancel the session context.
	s.watching = true
	go s.watchDisconnect(ctx)

	res, err := s.h.Pipeline.Run(ctx, solver.Input{
		UserID:    claims.Subject,
		Filename:  filename,
		Primary:   document,
		Streaming: true,
	}, s)
	if err != nil {
		s.fail(ctx, err)
		return
	}

	if s.h.OnComplete != nil {
		s.h.OnComplete(context.WithoutCancel(ctx), claims.Subject, filename, res)
	}

	s.writeMetrics(ctx, res)
	_ = s.info(ctx, "Processing complete.")
}

func (s *session) readHello(ctx context.Context) (*Hello, error) {
	rctx, cancel := context.WithTimeout(ctx, helloTimeout)
	defer cancel()
	_, data, err := s.conn.Read(rctx)
	if err != nil {
		return nil, fmt.Errorf("%w: reading first message: %v", domain.ErrTransport, err)
	}
	return ParseHello(data, s.h.AllowBareToken)
}

func (s *session) readDocument(ctx context.Context, mode string) ([]byte, error) {
	rctx, cancel := context.WithTimeout(ctx, documentTimeout)
	defer cancel()
	msgType, data, err := s.conn.Read(rctx)
	if err != nil {
		return nil, fmt.Errorf("%w: reading document frame: %v", domain.ErrTransport, err)
	}
	return DecodeFrame(mode, msgType, data)
}

// watchDisconnect drains the socket so a client hangup cancels the pipeline.
func (s *session) watchDisconnect(ctx context.Context) {
	for {
		if _, _, err := s.conn.Read(ctx); err != nil {
			s.cancel()
			return
		}
	}
}

func (s *session) writeMetrics(ctx context.Context, res *solver.Result) {
	lines := []string{
		"--- metrics ---",
		fmt.Sprintf("token_count: %d", res.Metrics.TokenCount),
		fmt.Sprintf("characters_extracted: %d", res.Metrics.PrimaryChars),
		fmt.Sprintf("extraction_time: %.2fs", res.Metrics.ExtractionTime.Seconds()),
		fmt.Sprintf("generation_time: %.2fs", res.Metrics.GenerationTime.Seconds()),
	}
	for _, line := range lines {
		if err := s.info(ctx, line); err != nil {
			return
		}
	}
}

// awaitClientClose blocks until the client hangs up or the request context
// ends. When the disconnect watcher already owns the read side, its cancel
// signals the hangup; otherwise this drains the socket directly.
func (s *session) awaitClientClose(ctx context.Context) {
	if s.watching {
		<-ctx.Done()
		return
	}
	for {
		if _, _, err := s.conn.Read(ctx); err != nil {
			return
		}
	}
}

func (s *session) fail(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		s.h.Logger.Debug().Err(err).Msg("websocket session canceled")
		return
	}
	s.h.Logger.Warn().Err(err).Msg("websocket session failed")
	_ = s.write(ctx, "[error] "+publicError(err))
}

// publicError keeps provider internals out of client-facing messages.
func publicError(err error) string {
	switch {
	case errors.Is(err, domain.ErrAuth):
		return "authentication failed"
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrExtraction):
		return err.Error()
	case errors.Is(err, domain.ErrGeneration):
		return "solution generation failed"
	default:
		return "processing failed"
	}
}

func (s *session) info(ctx context.Context, msg string) error {
	return s.write(ctx, "[info] "+msg)
}

func (s *session) write(ctx context.Context, text string) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return s.conn.Write(wctx, websocket.MessageText, []byte(text))
}

// The session itself is the pipeline's progress sink.

func (s *session) Notice(ctx context.Context, msg string) error {
	if err := s.info(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	return nil
}

func (s *session) Warning(ctx context.Context, msg string) error {
	if err := s.write(ctx, "[warn] "+msg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	return nil
}

func (s *session) Fragment(ctx context.Context, text string) error {
	if err := s.write(ctx, text); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	return nil
}
