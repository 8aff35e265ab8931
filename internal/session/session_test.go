package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benmeehan/grid-agent/internal/mocks"
	"github.com/benmeehan/grid-agent/internal/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testMQTTConfig = MQTTConfig{
	Broker:      "tcp://10.0.0.5:1883",
	ClientID:    "agent-A1",
	TopicPrefix: "grid/agents",
	AgentID:     "A1",
	QOS:         1,
}

// expectInitialize makes Initialize report a successful connection the way
// the client does once the broker accepts it.
func expectInitialize(client *mocks.MockMQTTClient, broker, clientID, caCertPath any) *mock.Call {
	return client.On("Initialize", broker, clientID, caCertPath, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { args.Get(3).(func())() }).
		Return(nil)
}

func TestTopic(t *testing.T) {
	topic, err := Topic("grid/agents", "A1", models.MessageDeviceChange)
	require.NoError(t, err)
	assert.Equal(t, "grid/agents/A1/devices", topic)

	_, err = Topic("grid/agents", "A1", "bogus")
	assert.Error(t, err)
}

func TestMQTTSession_OpenDeliversRequests(t *testing.T) {
	// Setup
	client := new(mocks.MockMQTTClient)
	var callback mqtt.MessageHandler
	expectInitialize(client, "tcp://10.0.0.5:1883", "agent-A1", "")
	client.On("Subscribe", "grid/agents/A1/requests", byte(1), mock.Anything).
		Return(mocks.NewDoneToken(nil)).
		Run(func(args mock.Arguments) { callback = args.Get(2).(mqtt.MessageHandler) })

	received := make(chan models.RoutingRequest, 1)
	s := NewMQTTSession(client, testMQTTConfig, zerolog.Nop())

	// Execute
	require.NoError(t, s.Open(context.Background(), func(req models.RoutingRequest) { received <- req }))
	require.NotNil(t, callback)
	callback(nil, mocks.NewMockMessage("grid/agents/A1/requests", []byte("not json")))
	callback(nil, mocks.NewMockMessage("grid/agents/A1/requests",
		[]byte(`{"action":"ping","device_id":"D1","correlation_id":"c1"}`)))

	// Assert
	req := <-received
	assert.Equal(t, models.RoutingRequest{Action: "ping", DeviceID: "D1", CorrelationID: "c1"}, req)
	assert.ErrorIs(t, s.Open(context.Background(), nil), ErrAlreadyOpen)
}

func TestMQTTSession_SubscribeFailureDisconnects(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	expectInitialize(client, mock.Anything, mock.Anything, mock.Anything)
	client.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(mocks.NewDoneToken(errors.New("not authorized")))
	client.On("Disconnect", uint(disconnectQuiesceMs)).Return()

	s := NewMQTTSession(client, testMQTTConfig, zerolog.Nop())
	err := s.Open(context.Background(), func(models.RoutingRequest) {})

	assert.ErrorContains(t, err, "not authorized")
	client.AssertCalled(t, "Disconnect", uint(disconnectQuiesceMs))
	assert.ErrorIs(t, s.Send(context.Background(), models.MessageResponse, nil), ErrNotOpen)
}

func TestMQTTSession_ResubscribesAfterReconnect(t *testing.T) {
	// Setup
	client := new(mocks.MockMQTTClient)
	var onConnect func()
	var onConnectionLost func(error)
	client.On("Initialize", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			onConnect = args.Get(3).(func())
			onConnectionLost = args.Get(4).(func(error))
			onConnect()
		}).
		Return(nil)
	var callback mqtt.MessageHandler
	client.On("Subscribe", "grid/agents/A1/requests", byte(1), mock.Anything).
		Return(mocks.NewDoneToken(nil)).
		Run(func(args mock.Arguments) { callback = args.Get(2).(mqtt.MessageHandler) })

	received := make(chan models.RoutingRequest, 1)
	s := NewMQTTSession(client, testMQTTConfig, zerolog.Nop())
	require.NoError(t, s.Open(context.Background(), func(req models.RoutingRequest) { received <- req }))
	assert.True(t, s.Alive())

	// Execute
	onConnectionLost(errors.New("EOF"))
	assert.False(t, s.Alive())
	onConnect()

	// Assert
	client.AssertNumberOfCalls(t, "Subscribe", 2)
	assert.True(t, s.Alive())
	callback(nil, mocks.NewMockMessage("grid/agents/A1/requests", []byte(`{"action":"ping","correlation_id":"c2"}`)))
	assert.Equal(t, "c2", (<-received).CorrelationID)
}

func TestMQTTSession_OpenWaitsForFirstSubscription(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	client.On("Initialize", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	client.On("Disconnect", uint(disconnectQuiesceMs)).Return()

	s := NewMQTTSession(client, testMQTTConfig, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Open(ctx, func(models.RoutingRequest) {})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	client.AssertCalled(t, "Disconnect", uint(disconnectQuiesceMs))
	client.AssertNotCalled(t, "Subscribe", mock.Anything, mock.Anything, mock.Anything)
	assert.False(t, s.Alive())
}

func TestMQTTSession_SendPublishesOnKindTopic(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	expectInitialize(client, mock.Anything, mock.Anything, mock.Anything)
	client.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(mocks.NewDoneToken(nil))
	client.On("Publish", "grid/agents/A1/responses", byte(1), false, mock.Anything).Return(mocks.NewDoneToken(nil))

	s := NewMQTTSession(client, testMQTTConfig, zerolog.Nop())
	require.NoError(t, s.Open(context.Background(), func(models.RoutingRequest) {}))

	err := s.Send(context.Background(), models.MessageResponse, models.RoutingResponse{CorrelationID: "c1"})

	require.NoError(t, err)
	client.AssertCalled(t, "Publish", "grid/agents/A1/responses", byte(1), false,
		mock.MatchedBy(func(data []byte) bool {
			var resp models.RoutingResponse
			return json.Unmarshal(data, &resp) == nil && resp.CorrelationID == "c1"
		}))
}

func TestMQTTSession_SendHonoursContext(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	expectInitialize(client, mock.Anything, mock.Anything, mock.Anything)
	client.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(mocks.NewDoneToken(nil))

	pending := new(mocks.MockToken)
	pending.On("Done").Return((<-chan struct{})(make(chan struct{})))
	client.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(pending)

	s := NewMQTTSession(client, testMQTTConfig, zerolog.Nop())
	require.NoError(t, s.Open(context.Background(), func(models.RoutingRequest) {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Send(ctx, models.MessageHeartbeat, models.Heartbeat{AgentID: "A1"})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMQTTSession_Close(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	expectInitialize(client, mock.Anything, mock.Anything, mock.Anything)
	client.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(mocks.NewDoneToken(nil))
	client.On("Unsubscribe", []string{"grid/agents/A1/requests"}).Return(mocks.NewDoneToken(nil))
	client.On("Disconnect", uint(disconnectQuiesceMs)).Return()

	s := NewMQTTSession(client, testMQTTConfig, zerolog.Nop())
	assert.ErrorIs(t, s.Close(), ErrNotOpen)
	require.NoError(t, s.Open(context.Background(), func(models.RoutingRequest) {}))

	require.NoError(t, s.Close())

	client.AssertExpectations(t)
	assert.ErrorIs(t, s.Send(context.Background(), models.MessageResponse, nil), ErrNotOpen)
}

// controlPlane is a WebSocket server that sends one request and forwards
// every envelope it receives.
func controlPlane(t *testing.T, received chan<- models.Envelope) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/agent" || r.URL.Query().Get("agent_id") != "A1" {
			http.Error(w, "unknown agent", http.StatusForbidden)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		payload, _ := json.Marshal(models.RoutingRequest{Action: "info", DeviceID: "D1", CorrelationID: "c1"})
		if err := conn.WriteJSON(models.Envelope{Type: models.MessageRequest, Payload: payload}); err != nil {
			return
		}
		for {
			var env models.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			received <- env
		}
	}))
}

func TestWSSession_RoundTrip(t *testing.T) {
	// Setup
	received := make(chan models.Envelope, 1)
	srv := controlPlane(t, received)
	defer srv.Close()

	s := NewWSSession(WSConfig{
		Address: strings.TrimPrefix(srv.URL, "http://"),
		Path:    "ws/agent",
		AgentID: "A1",
	}, zerolog.Nop())

	requests := make(chan models.RoutingRequest, 1)

	// Execute
	require.NoError(t, s.Open(context.Background(), func(req models.RoutingRequest) { requests <- req }))
	assert.True(t, s.Alive())
	req := <-requests
	require.NoError(t, s.Send(context.Background(), models.MessageResponse, models.RoutingResponse{CorrelationID: req.CorrelationID}))

	// Assert
	env := <-received
	assert.Equal(t, models.MessageResponse, env.Type)
	var resp models.RoutingResponse
	require.NoError(t, json.Unmarshal(env.Payload, &resp))
	assert.Equal(t, "c1", resp.CorrelationID)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), ErrNotOpen)
	assert.ErrorIs(t, s.Send(context.Background(), models.MessageResponse, resp), ErrNotOpen)
}

func TestWSSession_DialRejected(t *testing.T) {
	srv := controlPlane(t, make(chan models.Envelope, 1))
	defer srv.Close()

	s := NewWSSession(WSConfig{
		Address: strings.TrimPrefix(srv.URL, "http://"),
		Path:    "/ws/agent",
		AgentID: "intruder",
	}, zerolog.Nop())

	err := s.Open(context.Background(), func(models.RoutingRequest) {})

	assert.ErrorContains(t, err, "status=403")
}

func TestWSSession_PeerCloseMarksSessionLost(t *testing.T) {
	// Setup
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "restarting"))
		_ = conn.Close()
	}))
	defer srv.Close()

	s := NewWSSession(WSConfig{
		Address: strings.TrimPrefix(srv.URL, "http://"),
		Path:    "ws/agent",
		AgentID: "A1",
	}, zerolog.Nop())

	// Execute
	require.NoError(t, s.Open(context.Background(), func(models.RoutingRequest) {}))

	// Assert
	require.Eventually(t, func() bool { return !s.Alive() }, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, s.Send(context.Background(), models.MessageResponse, models.RoutingResponse{}), ErrLost)
	assert.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), ErrNotOpen)
}
