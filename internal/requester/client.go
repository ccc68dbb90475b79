// Package requester is the consumer-side client: it submits a request body
// to a gateway, runs the returned frames through the envelope state machine,
// and independently verifies the charged balance delta against the offer.
package requester

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"meterwire/internal/envelope"
	"meterwire/internal/protocol"
)

// ErrTruncatedExchange indicates the frame stream ended before the epilogue.
// A truncated exchange has no verified balance delta and must not be settled.
var ErrTruncatedExchange = errors.New("exchange truncated before epilogue")

// ErrChargeMismatch indicates the provider's balance delta disagrees with
// the cost recomputed locally from the offer and the reported usage.
var ErrChargeMismatch = errors.New("balance delta does not match locally computed cost")

const sseDataPrefix = "data: "

// Result is the settled outcome of one exchange.
type Result struct {
	Kind     envelope.Kind
	Prologue protocol.ResponsePrologue

	// Rejected is set when the prologue carried a non-Ok status. A rejected
	// exchange has no text, usage, or epilogue.
	Rejected bool

	Text     string
	Usage    *protocol.Usage
	Epilogue *protocol.Epilogue

	// LocalCost is the charge recomputed from the offer and usage. For a
	// verified exchange the provider's non-null balance delta equals it.
	LocalCost string
}

// Client drives metered exchanges against one gateway.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a client for the gateway at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// Do submits the raw request body, consumes the envelope, and verifies the
// charge against the offer. The body is validated locally first; a body that
// satisfies neither request kind never reaches the wire.
func (c *Client) Do(ctx context.Context, offer protocol.Offer, body []byte) (*Result, error) {
	reqBody, kind, err := envelope.ParseRequestBody(body)
	if err != nil {
		return nil, err
	}

	exchange, err := envelope.New(reqBody)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/v1/completions"
	if kind == envelope.KindChatCompletions {
		endpoint = c.baseURL + "/v1/chat/completions"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("submit request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned HTTP %d", resp.StatusCode)
	}

	result := &Result{Kind: kind}
	sse := strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream")

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if sse {
			if !bytes.HasPrefix(line, []byte(sseDataPrefix)) {
				continue
			}
			line = line[len(sseDataPrefix):]
			if string(bytes.TrimSpace(line)) == "[DONE]" {
				break
			}
		}

		event, err := exchange.Feed(line)
		if err != nil {
			return nil, err
		}
		c.apply(result, event)

		if result.Rejected || (!sse && exchange.Done()) {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read frame stream: %w", err)
	}

	if result.Rejected {
		return result, nil
	}
	if !exchange.Done() {
		return nil, fmt.Errorf("%w: stream ended while %s", ErrTruncatedExchange, exchange.State())
	}

	if err := c.verify(result, offer); err != nil {
		return nil, err
	}
	return result, nil
}

// apply folds one accepted frame into the accumulating result.
func (c *Client) apply(result *Result, event envelope.Event) {
	switch {
	case event.Prologue != nil:
		result.Prologue = *event.Prologue
		result.Rejected = !event.Prologue.Ok()

	case event.CompletionResponse != nil:
		r := event.CompletionResponse
		if len(r.Choices) > 0 {
			result.Text = r.Choices[0].Text
		}
		result.Usage = r.Usage

	case event.ChatResponse != nil:
		r := event.ChatResponse
		if len(r.Choices) > 0 && r.Choices[0].Message.Content != nil {
			result.Text = *r.Choices[0].Message.Content
		}
		result.Usage = r.Usage

	case event.CompletionChunk != nil:
		ch := event.CompletionChunk
		if len(ch.Choices) > 0 {
			result.Text += ch.Choices[0].Text
		}
		if ch.Usage != nil {
			result.Usage = ch.Usage
		}

	case event.ChatChunk != nil:
		ch := event.ChatChunk
		if len(ch.Choices) > 0 {
			if msg := ch.Choices[0].Delta.Message; msg != nil {
				result.Text += msg.Content.Text()
			}
		}
		if ch.Usage != nil {
			result.Usage = ch.Usage
		}

	case event.Epilogue != nil:
		result.Epilogue = event.Epilogue

	case event.EpilogueChunk != nil:
		e := event.EpilogueChunk.Epilogue()
		result.Epilogue = &e
	}
}

// verify recomputes the cost from the offer and the final usage and checks
// the provider's balance delta against it. A null delta is legal only when
// the offer's trial allowance covers the whole charge.
func (c *Client) verify(result *Result, offer protocol.Offer) error {
	if result.Epilogue == nil {
		return ErrTruncatedExchange
	}
	if result.Usage == nil {
		return fmt.Errorf("%w: no usage reported for the exchange", ErrChargeMismatch)
	}

	cost, err := protocol.CalcCost(offer, *result.Usage)
	if err != nil {
		return err
	}
	result.LocalCost = cost

	delta := result.Epilogue.BalanceDelta
	if delta == nil {
		if offer.Trial == nil {
			return fmt.Errorf("%w: null balance delta without a trial allowance", ErrChargeMismatch)
		}
		covered, err := trialCovers(*offer.Trial, cost)
		if err != nil {
			return err
		}
		if !covered {
			return fmt.Errorf("%w: null balance delta but cost %s exceeds the trial allowance", ErrChargeMismatch, cost)
		}
		return nil
	}

	if *delta != cost {
		return fmt.Errorf("%w: provider charged %s, local cost is %s", ErrChargeMismatch, *delta, cost)
	}
	return nil
}

func trialCovers(trial protocol.Price, cost string) (bool, error) {
	allowance, err := trial.Int()
	if err != nil {
		return false, fmt.Errorf("%w: trial: %v", protocol.ErrInvalidOffer, err)
	}
	costInt, err := protocol.Price{Pol: cost}.Int()
	if err != nil {
		return false, err
	}
	return costInt.Cmp(allowance) <= 0, nil
}
