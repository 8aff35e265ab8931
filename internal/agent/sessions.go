package agent

import (
	"net"
	"strconv"

	"github.com/benmeehan/grid-agent/internal/constants"
	"github.com/benmeehan/grid-agent/internal/session"
	"github.com/benmeehan/grid-agent/internal/utils"
	"github.com/benmeehan/grid-agent/pkg/file"
	"github.com/benmeehan/grid-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

// NewSessionFactory returns the factory for the transport configured in
// control_plane.transport.
func NewSessionFactory(cfg *utils.Config, agentID string, files file.FileOperations, logger zerolog.Logger) SessionFactory {
	cp := cfg.ControlPlane

	return func(serverIP string, serverPort int) session.Session {
		address := net.JoinHostPort(serverIP, strconv.Itoa(serverPort))

		if cp.Transport == constants.TransportWebSocket {
			return session.NewWSSession(session.WSConfig{
				Address: address,
				Path:    cp.WebSocketPath,
				AgentID: agentID,
			}, logger)
		}

		scheme := "tcp://"
		if cp.CACertificate != "" {
			scheme = "ssl://"
		}
		return session.NewMQTTSession(mqtt.NewMqttService(files), session.MQTTConfig{
			Broker:      scheme + address,
			ClientID:    cp.ClientID + "-" + agentID,
			CACertPath:  cp.CACertificate,
			TopicPrefix: cp.TopicPrefix,
			AgentID:     agentID,
			QOS:         byte(cp.QOS),
		}, logger)
	}
}
