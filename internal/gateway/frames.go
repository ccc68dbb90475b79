package gateway

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"meterwire/internal/engine"
	"meterwire/internal/protocol"
	"meterwire/internal/protocol/chat"
	"meterwire/internal/protocol/completions"
)

// frameWriter serializes envelope frames onto the wire in one of the two
// reference framings.
type frameWriter struct {
	c   echo.Context
	sse bool
}

// startNDJSON begins a non-streaming exchange: one JSON frame per line.
func startNDJSON(c echo.Context) (*frameWriter, error) {
	c.Response().Header().Set(echo.HeaderContentType, "application/x-ndjson")
	c.Response().WriteHeader(http.StatusOK)
	return &frameWriter{c: c}, nil
}

// startSSE begins a streaming exchange: one `data:` event per frame,
// terminated by a [DONE] marker.
func startSSE(c echo.Context) (*frameWriter, error) {
	if _, ok := c.Response().Writer.(http.Flusher); !ok {
		return nil, &requestError{
			Status:  http.StatusInternalServerError,
			Message: "server does not support streaming responses",
			Type:    "server_error",
		}
	}
	header := c.Response().Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	return &frameWriter{c: c, sse: true}, nil
}

func (w *frameWriter) writeFrame(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if w.sse {
		if _, err := fmt.Fprintf(w.c.Response(), "data: %s\n\n", data); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	} else {
		if _, err := fmt.Fprintf(w.c.Response(), "%s\n", data); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	}
	w.c.Response().Flush()
	return nil
}

func (w *frameWriter) done() error {
	if !w.sse {
		return nil
	}
	if _, err := fmt.Fprint(w.c.Response(), "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("write stream terminator: %w", err)
	}
	w.c.Response().Flush()
	return nil
}

func (s *Server) respondCompletion(c echo.Context, req *completions.Request, result *engine.Completion, prologue protocol.ResponsePrologue, offer protocol.Offer, payload string) error {
	epilogue, err := s.buildEpilogue(offer, result.Usage, payload)
	if err != nil {
		return err
	}

	usage := result.Usage
	resp := completions.Response{
		ID:      newID("cmpl"),
		Object:  completions.ObjectType,
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []completions.Choice{{
			Index:        0,
			Text:         result.Text,
			FinishReason: result.FinishReason,
		}},
		Usage: &usage,
	}

	w, err := startNDJSON(c)
	if err != nil {
		return err
	}
	for _, frame := range []any{prologue, resp, epilogue} {
		if err := w.writeFrame(frame); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) streamCompletion(c echo.Context, req *completions.Request, result *engine.Completion, prologue protocol.ResponsePrologue, offer protocol.Offer, payload string) error {
	epilogue, err := s.buildEpilogue(offer, result.Usage, payload)
	if err != nil {
		return err
	}

	w, err := startSSE(c)
	if err != nil {
		return err
	}
	if err := w.writeFrame(prologue); err != nil {
		return err
	}

	id := newID("cmpl")
	created := time.Now().Unix()
	header := func() completions.Chunk {
		return completions.Chunk{
			ID:      id,
			Object:  completions.ObjectType,
			Created: created,
			Model:   req.Model,
		}
	}

	for _, piece := range splitDeltas(result.Text) {
		chunk := header()
		chunk.Choices = []completions.ChunkChoice{{Index: 0, Text: piece}}
		if err := w.writeFrame(chunk); err != nil {
			return err
		}
	}

	finish := result.FinishReason
	usage := result.Usage
	last := header()
	last.Choices = []completions.ChunkChoice{{Index: 0, FinishReason: &finish}}
	last.Usage = &usage
	if err := w.writeFrame(last); err != nil {
		return err
	}

	if err := w.writeFrame(protocol.NewEpilogueChunk(epilogue)); err != nil {
		return err
	}
	return w.done()
}

func (s *Server) respondChatCompletion(c echo.Context, req *chat.Request, result *engine.ChatCompletion, prologue protocol.ResponsePrologue, offer protocol.Offer, payload string) error {
	epilogue, err := s.buildEpilogue(offer, result.Usage, payload)
	if err != nil {
		return err
	}

	content := result.Content
	usage := result.Usage
	resp := chat.Response{
		ID:      newID("chatcmpl"),
		Object:  chat.ResponseObjectType,
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chat.Choice{{
			Index: 0,
			Message: chat.ResponseMessage{
				Role:    chat.RoleAssistant,
				Content: &content,
			},
			FinishReason: result.FinishReason,
		}},
		Usage: &usage,
	}

	w, err := startNDJSON(c)
	if err != nil {
		return err
	}
	for _, frame := range []any{prologue, resp, epilogue} {
		if err := w.writeFrame(frame); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) streamChatCompletion(c echo.Context, req *chat.Request, result *engine.ChatCompletion, prologue protocol.ResponsePrologue, offer protocol.Offer, payload string) error {
	epilogue, err := s.buildEpilogue(offer, result.Usage, payload)
	if err != nil {
		return err
	}

	w, err := startSSE(c)
	if err != nil {
		return err
	}
	if err := w.writeFrame(prologue); err != nil {
		return err
	}

	id := newID("chatcmpl")
	created := time.Now().Unix()
	header := func() chat.Chunk {
		return chat.Chunk{
			ID:      id,
			Object:  chat.ChunkObjectType,
			Created: created,
			Model:   req.Model,
		}
	}

	for _, piece := range splitDeltas(result.Content) {
		msg := chat.Message{Role: chat.RoleAssistant, Content: chat.TextContent(piece)}
		chunk := header()
		chunk.Choices = []chat.ChunkChoice{{Index: 0, Delta: chat.Delta{Message: &msg}}}
		if err := w.writeFrame(chunk); err != nil {
			return err
		}
	}

	finish := result.FinishReason
	usage := result.Usage
	last := header()
	last.Choices = []chat.ChunkChoice{{Index: 0, FinishReason: &finish}}
	last.Usage = &usage
	if err := w.writeFrame(last); err != nil {
		return err
	}

	if err := w.writeFrame(protocol.NewEpilogueChunk(epilogue)); err != nil {
		return err
	}
	return w.done()
}

// splitDeltas chops generated text into a few word-aligned increments so
// the streaming path exercises more than one chunk.
func splitDeltas(text string) []string {
	words := strings.SplitAfter(text, " ")
	const perChunk = 3
	var out []string
	for len(words) > 0 {
		n := perChunk
		if n > len(words) {
			n = len(words)
		}
		out = append(out, strings.Join(words[:n], ""))
		words = words[n:]
	}
	return out
}

func newID(prefix string) string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return prefix + "_" + hex.EncodeToString([]byte(time.Now().UTC().Format(time.RFC3339Nano)))
	}
	return prefix + "_" + hex.EncodeToString(b[:])
}

type requestError struct {
	Status  int
	Message string
	Type    string
}

func (e *requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func writeError(c echo.Context, status int, message, errType string) error {
	var payload errorBody
	payload.Error.Message = message
	payload.Error.Type = errType
	return c.JSON(status, payload)
}

// errorHandler keeps transport-level failures in the OpenAI error shape.
// Protocol-level rejections never reach here; they travel in-band as
// prologue frames.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr *requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type)
		return
	}

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		_ = writeError(c, echoErr.Code, fmt.Sprint(echoErr.Message), "invalid_request_error")
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error")
}
