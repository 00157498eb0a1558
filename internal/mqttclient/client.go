package mqttclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/snarg/vidtalk-engine/internal/metrics"
)

// ProcessRequest is the payload of {prefix}/process.
type ProcessRequest struct {
	VideoID  string `json:"videoId"`
	VideoURL string `json:"videoUrl"`
}

// ProcessHandler receives validated process requests.
type ProcessHandler func(req ProcessRequest)

type Client struct {
	conn      mqtt.Client
	prefix    string
	connected atomic.Bool
	log       zerolog.Logger
	handler   atomic.Pointer[ProcessHandler]
}

type Options struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Log         zerolog.Logger
}

func Connect(opts Options) (*Client, error) {
	c := &Client{
		prefix: strings.TrimSuffix(opts.TopicPrefix, "/"),
		log:    opts.Log,
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetDefaultPublishHandler(c.onMessage)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return c, nil
}

// SetProcessHandler installs the handler for {prefix}/process messages.
func (c *Client) SetProcessHandler(h ProcessHandler) {
	c.handler.Store(&h)
}

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)
	topic := ProcessTopic(c.prefix)
	c.log.Info().Str("topic", topic).Msg("mqtt connected, subscribing")

	token := client.Subscribe(topic, 1, nil)
	token.Wait()
	if err := token.Error(); err != nil {
		c.log.Error().Err(err).Msg("mqtt subscribe failed")
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	metrics.MQTTMessagesTotal.WithLabelValues("in").Inc()
	c.handleMessage(msg.Topic(), msg.Payload())
}

func (c *Client) handleMessage(topic string, payload []byte) {
	if topic != ProcessTopic(c.prefix) {
		c.log.Debug().
			Str("topic", topic).
			Int("payload_size", len(payload)).
			Msg("mqtt message on unexpected topic")
		return
	}

	req, err := ParseProcessRequest(payload)
	if err != nil {
		c.log.Warn().Err(err).Str("topic", topic).Msg("invalid process request")
		return
	}

	h := c.handler.Load()
	if h == nil {
		c.log.Warn().Str("video_id", req.VideoID).Msg("process request received before handler was set")
		return
	}
	(*h)(req)
}

// PublishStatus publishes v as JSON on {prefix}/videos/{id}/status, retained
// so late subscribers see the last state. It does not wait for the broker.
func (c *Client) PublishStatus(videoID string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	c.conn.Publish(StatusTopic(c.prefix, videoID), 1, true, payload)
	metrics.MQTTMessagesTotal.WithLabelValues("out").Inc()
	return nil
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	c.conn.Disconnect(1000)
}

// ProcessTopic is where process requests arrive.
func ProcessTopic(prefix string) string {
	return prefix + "/process"
}

// StatusTopic carries the job status of one video.
func StatusTopic(prefix, videoID string) string {
	return prefix + "/videos/" + videoID + "/status"
}

// ParseProcessRequest decodes and validates a process request payload.
func ParseProcessRequest(payload []byte) (ProcessRequest, error) {
	var req ProcessRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("decode process request: %w", err)
	}
	req.VideoID = strings.TrimSpace(req.VideoID)
	req.VideoURL = strings.TrimSpace(req.VideoURL)
	if req.VideoID == "" || req.VideoURL == "" {
		return req, errors.New("videoId and videoUrl are required")
	}
	if strings.ContainsAny(req.VideoID, "/+#") {
		return req, fmt.Errorf("invalid videoId %q", req.VideoID)
	}
	return req, nil
}
