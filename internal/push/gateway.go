// Package push adapts the Expo push service to the notification engine.
package push

import (
	"context"
	"net/http"
	"time"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"go.uber.org/zap"

	"givedesk.io/backoffice/internal/config"
	"givedesk.io/backoffice/internal/pkg/logger"
)

// Ticket statuses reported per token.
const (
	TicketOK    = "ok"
	TicketError = "error"
)

// MaxBatchSize is the gateway's per-request message limit.
const MaxBatchSize = 100

// Message is one push addressed to one device token.
type Message struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// Ticket is the gateway's verdict for one message.
type Ticket struct {
	Token   string
	Status  string
	Message string
	// Reason is the gateway error code, e.g. DeviceNotRegistered.
	Reason string
}

// Failed reports whether the token should be dropped.
func (t Ticket) Failed() bool { return t.Status == TicketError }

// Gateway sends one batch and returns one ticket per message, in order.
// An error means the whole batch was rejected.
type Gateway interface {
	SendBatch(ctx context.Context, msgs []Message) ([]Ticket, error)
}

// ExpoGateway sends through the Expo push API.
type ExpoGateway struct {
	client *expo.PushClient
}

// NewExpoGateway builds a gateway from configuration.
func NewExpoGateway(cfg config.PushConfig) *ExpoGateway {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	host := cfg.Host
	if host == "" {
		host = expo.DefaultHost
	}
	return &ExpoGateway{
		client: expo.NewPushClient(&expo.ClientConfig{
			Host:        host,
			APIURL:      expo.DefaultBaseAPIURL,
			AccessToken: cfg.AccessToken,
			HTTPClient:  &http.Client{Timeout: timeout},
		}),
	}
}

// SendBatch publishes msgs. Tokens that are not well-formed Expo tokens are
// reported as failed tickets without reaching the gateway.
func (g *ExpoGateway) SendBatch(ctx context.Context, msgs []Message) ([]Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tickets := make([]Ticket, len(msgs))
	outgoing := make([]expo.PushMessage, 0, len(msgs))
	index := make([]int, 0, len(msgs))

	for i, m := range msgs {
		token, err := expo.NewExponentPushToken(m.Token)
		if err != nil {
			tickets[i] = Ticket{Token: m.Token, Status: TicketError, Message: err.Error(), Reason: "InvalidToken"}
			continue
		}
		outgoing = append(outgoing, expo.PushMessage{
			To:       []expo.ExponentPushToken{token},
			Title:    m.Title,
			Body:     m.Body,
			Data:     m.Data,
			Sound:    "default",
			Priority: expo.DefaultPriority,
		})
		index = append(index, i)
	}

	if len(outgoing) == 0 {
		return tickets, nil
	}

	responses, err := g.client.PublishMultiple(outgoing)
	if err != nil {
		return nil, err
	}

	for j, resp := range responses {
		if j >= len(index) {
			break
		}
		i := index[j]
		t := Ticket{Token: msgs[i].Token, Status: resp.Status, Message: resp.Message}
		if resp.Status != expo.SuccessStatus {
			t.Status = TicketError
			if resp.Details != nil {
				t.Reason = resp.Details["error"]
			}
		}
		tickets[i] = t
	}

	logger.Debug("Push batch published",
		zap.Int("messages", len(msgs)),
		zap.Int("sent", len(outgoing)),
	)
	return tickets, nil
}

var _ Gateway = (*ExpoGateway)(nil)
