// Package feed consumes the live reading stream published by the meter
// API over websocket.
package feed

import (
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	maxRetries     = 10
	baseRetryDelay = 2 * time.Second
	maxRetryDelay  = 60 * time.Second

	// The API broadcasts at the collector scan interval; a silent
	// connection this long is considered dead.
	readDeadline = 90 * time.Second
)

// StartListener subscribes to the meter API websocket and calls
// funcToCall for every reading. Blocks until interrupted or until the
// connection cannot be re-established within the retry budget.
func StartListener(host string, funcToCall func(reading *CurrentReading)) {
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	retryCount := 0

	for {
		select {
		case <-interrupt:
			logrus.Info("Interrupt received, shutting down listener")
			return
		default:
		}

		if retryCount > 0 {
			retryDelay := time.Duration(1<<retryCount) * baseRetryDelay
			if retryDelay > maxRetryDelay {
				retryDelay = maxRetryDelay
			}
			logrus.Infof("Retrying connection in %v (attempt %d/%d)", retryDelay, retryCount+1, maxRetries)
			select {
			case <-time.After(retryDelay):
			case <-interrupt:
				logrus.Info("Interrupt received during retry wait, shutting down")
				return
			}
		}

		logrus.Infof("Connecting to %s", u.String())

		dialer := websocket.DefaultDialer
		dialer.HandshakeTimeout = 10 * time.Second
		conn, _, err := dialer.Dial(u.String(), nil)
		if err != nil {
			logrus.Warnf("Connection failed: %v", err)
			retryCount++
			if retryCount >= maxRetries {
				logrus.Errorf("Max retries (%d) reached, giving up", maxRetries)
				return
			}
			continue
		}

		logrus.Info("Connected, accepting meter readings")
		retryCount = 0

		connectionBroken := consume(conn, interrupt, funcToCall)
		conn.Close()

		if !connectionBroken {
			return
		}
		logrus.Info("Connection lost, will retry")
	}
}

// consume pumps readings off an established connection. Returns true
// when the connection broke and a reconnect should be attempted, false
// on a clean interrupt-driven shutdown.
func consume(
	conn *websocket.Conn,
	interrupt chan os.Signal,
	funcToCall func(reading *CurrentReading),
) bool {
	done := make(chan struct{})

	conn.SetReadDeadline(time.Now().Add(readDeadline))

	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				logrus.Warnf("Connection closed: %v", err)
				return
			}
			conn.SetReadDeadline(time.Now().Add(readDeadline))

			if messageType != websocket.TextMessage {
				logrus.Debugf("Ignoring message type %d", messageType)
				continue
			}
			if reading := ReadingFromJsonBytes(message); reading != nil {
				funcToCall(reading)
			} else {
				logrus.Warnf("Failed to parse reading: %s", string(message))
			}
		}
	}()

	// Keep the connection alive while the reader runs.
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				logrus.Warnf("Failed to send ping: %v", err)
				return true
			}
		case <-done:
			return true
		case <-interrupt:
			logrus.Info("Interrupt received, closing connection")
			err := conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			if err != nil {
				logrus.Warnf("Error sending close message: %v", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return false
		}
	}
}
