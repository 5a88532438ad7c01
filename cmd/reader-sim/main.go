package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"rental-rfid-backend/internal/ingest"
)

func main() {
	mode := flag.String("mode", "mqtt", "Transport: mqtt or http")
	brokerAddr := flag.String("broker", "tcp://localhost:1883", "MQTT broker address, e.g. tcp://localhost:1883")
	httpURL := flag.String("url", "http://localhost:8080/api/rfid/read", "Read endpoint for http mode")
	readerID := flag.String("reader-id", "sim-reader-1", "Reader identifier")
	readerName := flag.String("reader-name", "Simulated dock door", "Reader display name")
	apiKey := flag.String("api-key", os.Getenv("RFID_API_KEY"), "Reader API key")
	epcList := flag.String("epcs", "E28011606000020712345678,E28011606000020712345679", "Comma separated EPCs to report")
	interval := flag.Duration("interval", 2*time.Second, "Interval between batches")
	baseRSSI := flag.Float64("base-rssi", -60, "Baseline RSSI value to simulate")
	rssiJitter := flag.Float64("rssi-jitter", 6, "Maximum random jitter applied to RSSI readings")
	directional := flag.Bool("directional", true, "Alternate IN and OUT directions per batch")

	flag.Parse()

	epcs := strings.Split(*epcList, ",")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var send func(data []byte) error
	switch *mode {
	case "mqtt":
		client := connect(*brokerAddr, *readerID)
		defer client.Disconnect(250)
		topic := fmt.Sprintf("rfid/readers/%s/reads", *readerID)
		results := fmt.Sprintf("rfid/readers/%s/results", *readerID)
		client.Subscribe(results, 1, func(_ mqtt.Client, m mqtt.Message) {
			log.Printf("result: %s", m.Payload())
		}).Wait()
		send = func(data []byte) error {
			token := client.Publish(topic, 1, false, data)
			token.Wait()
			return token.Error()
		}
	case "http":
		httpClient := &http.Client{Timeout: 10 * time.Second}
		send = func(data []byte) error {
			resp, err := httpClient.Post(*httpURL, "application/json", bytes.NewReader(data))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			log.Printf("result (%d): %s", resp.StatusCode, body)
			return nil
		}
	default:
		log.Fatalf("unknown mode %q", *mode)
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	batchNo := 0
	publish := func() {
		direction := ""
		if *directional {
			direction = "IN"
			if batchNo%2 == 1 {
				direction = "OUT"
			}
		}
		batchNo++

		now := time.Now().UTC().Format(time.RFC3339Nano)
		batch := ingest.Batch{ReaderID: *readerID, ReaderName: readerName, APIKey: *apiKey}
		for _, epc := range epcs {
			rssi := *baseRSSI + (rand.Float64()*2-1)*(*rssiJitter)
			ts := now
			batch.Reads = append(batch.Reads, ingest.Read{
				EPC:       strings.TrimSpace(epc),
				RSSI:      &rssi,
				Direction: direction,
				Timestamp: &ts,
			})
		}

		data, err := json.Marshal(batch)
		if err != nil {
			log.Printf("failed to encode batch: %v", err)
			return
		}
		if err := send(data); err != nil {
			log.Printf("send error: %v", err)
			return
		}
		log.Printf("sent %d reads direction=%q", len(batch.Reads), direction)
	}

	publish()

	for {
		select {
		case <-ctx.Done():
			log.Print("received shutdown signal, exiting")
			return
		case <-ticker.C:
			publish()
		}
	}
}

func connect(broker, readerID string) mqtt.Client {
	clientID := fmt.Sprintf("%s-simulator-%d", readerID, time.Now().UnixNano())
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts = opts.SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("failed to connect to broker: %v", token.Error())
	}
	log.Printf("connected to MQTT broker %s as %s", broker, clientID)
	return client
}
