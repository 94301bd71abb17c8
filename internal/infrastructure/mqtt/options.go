package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/logix-uplink/internal/infrastructure/config"
)

const (
	// connectTimeout bounds the initial connection attempt.
	connectTimeout = 10 * time.Second

	// publishTimeout bounds each publish and subscribe acknowledgment.
	publishTimeout = 5 * time.Second

	// disconnectQuiesce is how long Close waits for in-flight messages, in ms.
	disconnectQuiesce = 1000

	keepAlive = 60 * time.Second

	tlsMinVersion = tls.VersionTLS12
)

// clientOptions builds paho options for the uplink connection.
//
// The session is clean: the only subscription is the command topic, which
// the client re-subscribes on every connect, and commands sent while the
// uplink is offline are meaningless once it is back (the scheduler will
// have run on its own). The LWT marks the target offline if the process
// dies without Close.
func clientOptions(cfg config.MQTTConfig, id Identity) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	will := id.status(cfg.Broker.ClientID, StateOffline, ReasonConnectionLost, time.Now())
	opts.SetBinaryWill(Topics{Target: id.Target}.Status(), statusPayload(will), byte(cfg.QoS), true)

	return opts
}
