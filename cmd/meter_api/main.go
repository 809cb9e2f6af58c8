// Meter API reads the clamp meter over serial and broadcasts readings.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/openenergytools/owl_current_meter/pkg/clamp_reader"
	"github.com/openenergytools/owl_current_meter/pkg/config"
	"github.com/openenergytools/owl_current_meter/pkg/feed"
	"github.com/openenergytools/owl_current_meter/pkg/solarinverter"
)

var collector *clamp_reader.Collector

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// ws clients for broadcasting live readings
var (
	wsClients                   = make(map[*websocket.Conn]bool)
	wsClientsMutex sync.RWMutex = sync.RWMutex{}
)

func main() {
	// Load config
	if err := config.LoadMeterAPIConfig(); err != nil {
		logrus.Fatalf("Failed to load meter API config: %v", err)
	}
	cfg := config.ActiveMeterAPIConfig

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	profile, ok := clamp_reader.SupportedMeters[cfg.MeterModel]
	if !ok {
		logrus.Fatalf("Unsupported meter model %q", cfg.MeterModel)
	}
	if cfg.Baudrate != 0 {
		profile.BaudRate = cfg.Baudrate
	}

	var err error
	collector, err = clamp_reader.New(clamp_reader.Options{
		Device:       cfg.SerialDevice,
		Config:       profile,
		ScanInterval: time.Duration(cfg.ScanIntervalSeconds) * time.Second,
		Logger:       logrus.StandardLogger(),
		OnReading:    broadcastReading,
	})
	if err != nil {
		logrus.Fatalf("Failed to build collector: %v", err)
	}

	// Start collecting; the API still serves if the port is unavailable,
	// Read reconnects on demand.
	if err := collector.Connect(); err != nil {
		logrus.Warnf("Meter not connected yet: %v", err)
	}

	// Setup HTTP handlers
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		response := map[string]string{
			"message": "OWL Current Meter API",
			"status":  "running",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	})

	http.HandleFunc("/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		reading, err := collector.Read()
		if err != nil {
			status := http.StatusServiceUnavailable
			if errors.Is(err, clamp_reader.ErrNoRealtimeData) {
				status = http.StatusNotFound
			}
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]string{
				"error": err.Error(),
			})
			return
		}

		json.NewEncoder(w).Encode(toFeedReading(reading))
	})

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.Warnf("WebSocket upgrade error: %v", err)
			return
		}

		AddWebSocketClient(conn)

		// Send current reading immediately if available
		if reading := collector.LastReading(); reading != nil {
			conn.WriteMessage(websocket.TextMessage, toFeedReading(reading).ToJsonBytes())
		}

		// Keep connection alive
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				RemoveWebSocketClient(conn)
				break
			}
		}
	})

	http.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		records := collector.HistoricalData()
		snapshot := feed.HistorySnapshot{
			Complete: collector.HistoryComplete(),
			Records:  make([]feed.HistoryRecord, 0, len(records)),
		}
		for _, rec := range records {
			snapshot.Records = append(snapshot.Records, feed.HistoryRecord{
				Timestamp: rec.Timestamp.Format(time.RFC3339),
				CurrentA:  rec.Values[clamp_reader.ValueCurrent],
			})
		}
		json.NewEncoder(w).Encode(snapshot)
	})

	// May be fast or slow depending on cached response from inverter.
	http.HandleFunc("/solar", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		power, err := solarinverter.ReadProduction()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{
				"error": err.Error(),
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]int32{
			"currentProduction": power,
		})
	})

	listener := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort)
	logrus.Infof("Starting OWL Current Meter API on %s", listener)
	logrus.Fatal(http.ListenAndServe(listener, nil))
}

func toFeedReading(reading clamp_reader.Reading) *feed.CurrentReading {
	return &feed.CurrentReading{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		CurrentA:  reading[clamp_reader.ValueCurrent],
	}
}

func broadcastReading(reading clamp_reader.Reading) {
	data := toFeedReading(reading).ToJsonBytes()
	if data == nil {
		return
	}

	wsClientsMutex.RLock()
	clients := make([]*websocket.Conn, 0, len(wsClients))
	for client := range wsClients {
		clients = append(clients, client)
	}
	wsClientsMutex.RUnlock()

	for _, client := range clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			RemoveWebSocketClient(client)
		}
	}
}

func AddWebSocketClient(conn *websocket.Conn) {
	wsClientsMutex.Lock()
	wsClients[conn] = true
	wsClientsMutex.Unlock()
}

func RemoveWebSocketClient(conn *websocket.Conn) {
	wsClientsMutex.Lock()
	delete(wsClients, conn)
	wsClientsMutex.Unlock()
	conn.Close()
}
