package qstash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	toolx "github.com/tanpawarit/clinic-appointment-agent/agent/tool"
)

// Config is the QSTASH_* section. Publishing is off unless Destination is set.
type Config struct {
	URL         string        `split_words:"true" default:"https://qstash.upstash.io"`
	Token       string        `split_words:"true"`
	Destination string        `split_words:"true"`
	Retries     int           `split_words:"true" default:"3"`
	Timeout     time.Duration `split_words:"true" default:"10s"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Destination) != ""
}

// Client publishes booking events to a QStash topic or URL destination.
type Client struct {
	baseURL     string
	token       string
	destination string
	retries     int
	httpClient  *http.Client
}

var _ toolx.Notifier = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("qstash token is required")
	}
	destination := strings.TrimSpace(cfg.Destination)
	if destination == "" {
		return nil, errors.New("qstash destination is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       strings.TrimSpace(cfg.Token),
		destination: destination,
		retries:     cfg.Retries,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	return client, nil
}

// deduplicationID is stable for a given event, so republishing the same
// event inside QStash's deduplication window is dropped upstream.
func deduplicationID(evt toolx.BookingEvent) string {
	prev := ""
	if evt.PreviousAt != nil {
		prev = evt.PreviousAt.UTC().Format(time.RFC3339)
	}
	name := fmt.Sprintf("%s|%d|%s|%s|%s|%s",
		evt.Kind, evt.Patient, strings.ToLower(evt.Doctor),
		evt.At.UTC().Format(time.RFC3339), prev, evt.OccurredAt.UTC().Format(time.RFC3339Nano))
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// Notify publishes one booking event.
func (c *Client) Notify(ctx context.Context, evt toolx.BookingEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode booking event: %w", err)
	}

	endpoint := c.baseURL + "/v2/publish/" + c.destination
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Upstash-Deduplication-Id", deduplicationID(evt))
	req.Header.Set("Upstash-Forward-X-Event-Kind", string(evt.Kind))
	if c.retries >= 0 {
		req.Header.Set("Upstash-Retries", strconv.Itoa(c.retries))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qstash publish: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("qstash publish: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
