package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/prakoso/voicecoach/domain/entities"
	"github.com/prakoso/voicecoach/domain/repositories"
	"github.com/prakoso/voicecoach/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict origins once the trainee web client has a fixed host
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// DetectorFactory builds a fresh speech detector per connection. Every voice
// session owns its own detector; they are never shared.
type DetectorFactory func() repositories.SpeechDetector

// Hub maintains the set of active voice sessions and holds the shared
// dependencies each session's controller needs.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	relay       *usecase.Relay
	recognizer  repositories.SpeechRecognizer
	synthesizer repositories.SpeechSynthesizer
	newDetector DetectorFactory

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(
	relay *usecase.Relay,
	recognizer repositories.SpeechRecognizer,
	synthesizer repositories.SpeechSynthesizer,
	newDetector DetectorFactory,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		relay:       relay,
		recognizer:  recognizer,
		synthesizer: synthesizer,
		newDetector: newDetector,
		logger:      logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.userID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("userID", client.userID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.userID]; ok {
				delete(h.clients, client.userID)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("userID", client.userID))
		}
	}
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is one authenticated voice session. It owns a controller and a
// detector; binary frames feed the controller, text frames drive it.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Authenticated user behind this session.
	userID string

	// Logger
	logger *zap.Logger

	// Controller is created on the first start message, once the audio
	// parameters are known. Only readPump touches it.
	controller *usecase.VoiceController

	// lastStatus tracks the previous reported status so the speaking
	// bracket messages fire exactly on the speaking transitions.
	statusMu   sync.Mutex
	lastStatus entities.VoiceStatus
}

// HandleWebSocketWithAuth upgrades a pre-authenticated request into a voice
// session.
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, userID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan WriteData, 256),
		userID:     userID,
		logger:     logger,
		lastStatus: entities.VoiceStatusStopped,
	}

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection into the controller.
func (c *Client) readPump() {
	defer func() {
		if c.controller != nil {
			c.controller.Close()
		}
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processControlMessage(message)
		case websocket.BinaryMessage:
			c.processAudioFrame(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the session to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processControlMessage dispatches one inbound JSON message.
func (c *Client) processControlMessage(message []byte) {
	msg, err := ParseControlMessage(message)
	if err != nil {
		c.logger.Error("Failed to parse control message", zap.Error(err))
		c.sendText(ErrorMessage("invalid_message", "Control message is not valid JSON"))
		return
	}

	switch msg.Type {
	case MessageTypeStart:
		c.handleStart(msg)
	case MessageTypeStop:
		if c.controller != nil {
			c.controller.Stop()
		}
	case MessageTypeListeningEnd:
		if c.controller != nil {
			c.controller.FinishUtterance()
		}
	case MessageTypePing:
		c.sendText(PongMessage())
	default:
		c.logger.Warn("Unknown control message type", zap.String("type", string(msg.Type)))
	}
}

// processAudioFrame forwards one binary audio frame to the controller.
func (c *Client) processAudioFrame(data []byte) {
	if c.controller == nil {
		c.logger.Warn("Received audio frame before start",
			zap.String("userID", c.userID),
			zap.Int("size", len(data)))
		return
	}
	c.controller.ProcessAudio(data)
}

// handleStart builds the controller on first use, then arms the microphone.
func (c *Client) handleStart(msg ControlMessage) {
	if c.controller == nil {
		audio := repositories.AudioConfig{
			SampleRate: 16000,
			Language:   "zh-CN",
			Encoding:   "LINEAR16",
		}
		if msg.SampleRate > 0 {
			audio.SampleRate = msg.SampleRate
		}
		if msg.Language != "" {
			audio.Language = msg.Language
		}
		if msg.Encoding != "" {
			audio.Encoding = msg.Encoding
		}

		config := usecase.VoiceControllerConfig{
			Audio:     audio,
			Synthesis: repositories.SynthesisOptions{Voice: msg.Voice},
			User:      c.userID,
		}

		var controller *usecase.VoiceController
		controller = usecase.NewVoiceController(
			c.hub.newDetector(),
			c.hub.recognizer,
			c.hub.relay,
			c.hub.synthesizer,
			&wsPlayer{client: c},
			config,
			usecase.VoiceCallbacks{
				OnStatusChanged: c.onStatusChanged,
				OnTranscript: func(text string) {
					c.sendText(TranscriptMessage(text))
				},
				OnChunk: func(text string) {
					c.sendText(ChunkMessage(text))
				},
				OnAnswer: func(answer string) {
					c.sendText(AnswerMessage(answer, controller.ConversationID()))
				},
				OnError: func(err error) {
					c.sendText(ErrorMessage("voice_error", err.Error()))
				},
			},
			c.logger,
		)
		c.controller = controller
	}

	c.controller.Start()
}

// onStatusChanged reports every transition and brackets the speaking phase
// with explicit start and end markers.
func (c *Client) onStatusChanged(status entities.VoiceStatus) {
	c.statusMu.Lock()
	previous := c.lastStatus
	c.lastStatus = status
	c.statusMu.Unlock()

	if status == entities.VoiceStatusSpeaking && previous != entities.VoiceStatusSpeaking {
		c.sendText(SpeakingStartMessage())
	}
	if previous == entities.VoiceStatusSpeaking && status != entities.VoiceStatusSpeaking {
		c.sendText(SpeakingEndMessage())
	}

	c.sendText(StatusMessage(status.String()))
}

// sendText queues one outbound text frame without blocking the caller. A full
// send buffer means the peer stopped reading; the write pump will tear the
// connection down.
func (c *Client) sendText(payload []byte) {
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		c.logger.Warn("Dropping outbound message, send buffer full",
			zap.String("userID", c.userID))
	}
}

// wsPlayer delivers synthesized audio to the browser as binary frames. The
// actual playback happens client side, so delivery counts as played.
type wsPlayer struct {
	client *Client
}

var _ repositories.AudioPlayer = (*wsPlayer)(nil)

func (p *wsPlayer) Play(ctx context.Context, audio []byte) error {
	select {
	case p.client.send <- WriteData{Type: websocket.BinaryMessage, Payload: audio}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
