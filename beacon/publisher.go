package beacon

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ScannerPose is the wire form of a resolved scanner placement.
type ScannerPose struct {
	ScannerID   int      `json:"scannerId"`
	Position    Position `json:"position"`
	Orientation int      `json:"orientation"`
	Timestamp   int64    `json:"timestamp"`
}

// ChartSummary is the wire form of the assembled chart published after each
// successful registration pass.
type ChartSummary struct {
	BeaconCount      int           `json:"beaconCount"`
	ScannerCount     int           `json:"scannerCount"`
	MaxSeparation    int           `json:"maxSeparation"`
	ReferenceScanner int           `json:"referenceScanner"`
	Scanners         []ScannerPose `json:"scanners"`
	Timestamp        int64         `json:"timestamp"`
}

// Publisher manages publishing resolved poses and chart summaries to MQTT.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	poses         map[int]*ScannerPose
	mu            sync.RWMutex
}

// NewPublisher creates a new pose publisher.
// If client is nil, publishing is disabled (for testing).
func NewPublisher(client mqtt.Client) *Publisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = "beaconmesh"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true, // Retain so late subscribers see the latest pose
		poses:         make(map[int]*ScannerPose),
	}
}

// PublishPose publishes a single scanner's resolved placement to MQTT,
// both to its individual topic and as part of the combined poses topic.
func (p *Publisher) PublishPose(scannerID int, pose Pose) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	sp := &ScannerPose{
		ScannerID:   scannerID,
		Position:    pose.Translation,
		Orientation: pose.Orientation,
		Timestamp:   time.Now().Unix(),
	}

	p.mu.Lock()
	p.poses[scannerID] = sp
	p.mu.Unlock()

	if err := p.publishIndividual(sp); err != nil {
		log.Printf("Error publishing pose for scanner %d: %v", scannerID, err)
		return err
	}
	if err := p.publishCombined(); err != nil {
		log.Printf("Error publishing combined poses: %v", err)
		return err
	}
	return nil
}

// PublishChart publishes the assembled chart summary.
func (p *Publisher) PublishChart(w *WorldMap) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	summary := ChartSummary{
		BeaconCount:      w.BeaconCount(),
		ScannerCount:     len(w.Scanners),
		MaxSeparation:    w.MaxScannerSeparation(),
		ReferenceScanner: w.Metadata.ReferenceScanner,
		Timestamp:        time.Now().Unix(),
	}
	for _, place := range w.Scanners {
		summary.Scanners = append(summary.Scanners, ScannerPose{
			ScannerID:   place.ID,
			Position:    place.Position,
			Orientation: place.Pose.Orientation,
			Timestamp:   summary.Timestamp,
		})
	}

	topic := fmt.Sprintf("%s/chart", p.publishPrefix)
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshaling chart summary: %w", err)
	}
	return p.publish(topic, payload)
}

// publishIndividual publishes one scanner's pose to its individual topic.
func (p *Publisher) publishIndividual(sp *ScannerPose) error {
	topic := fmt.Sprintf("%s/%d", p.publishPrefix, sp.ScannerID)
	payload, err := json.Marshal(sp)
	if err != nil {
		return fmt.Errorf("marshaling pose: %w", err)
	}
	return p.publish(topic, payload)
}

// publishCombined publishes all known poses to the combined topic.
func (p *Publisher) publishCombined() error {
	p.mu.RLock()
	combined := make([]*ScannerPose, 0, len(p.poses))
	for _, sp := range p.poses {
		combined = append(combined, sp)
	}
	p.mu.RUnlock()

	topic := fmt.Sprintf("%s/poses", p.publishPrefix)
	payload, err := json.Marshal(combined)
	if err != nil {
		return fmt.Errorf("marshaling combined poses: %w", err)
	}
	return p.publish(topic, payload)
}

func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// GetPoses returns a snapshot of the poses published so far.
func (p *Publisher) GetPoses() map[int]ScannerPose {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make(map[int]ScannerPose, len(p.poses))
	for id, sp := range p.poses {
		result[id] = *sp
	}
	return result
}
