package mesh

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultPublishPrefix is the topic root when neither MQTT_PUBLISH_PREFIX
// nor mqtt.publishPrefix is set.
const DefaultPublishPrefix = "tudocover"

const publishTimeout = 2 * time.Second

// PlanMessage is the retained MQTT payload for a segment plan.
type PlanMessage struct {
	PlanID      string        `json:"planId"`
	VacuumID    string        `json:"vacuumId"`
	SegmentID   string        `json:"segmentId"`
	SegmentName string        `json:"segmentName,omitempty"`
	Coverage    float64       `json:"coverage"`
	Poses       []PlannedPose `json:"poses"`
	Timestamp   int64         `json:"timestamp"`
}

// PlanIndexMessage lists a vacuum's planned segments.
type PlanIndexMessage struct {
	VacuumID  string           `json:"vacuumId"`
	Segments  []PlanIndexEntry `json:"segments"`
	Timestamp int64            `json:"timestamp"`
}

// PlanIndexEntry summarizes one plan in a PlanIndexMessage.
type PlanIndexEntry struct {
	SegmentID string `json:"segmentId"`
	PoseCount int    `json:"poseCount"`
}

// PlanPublisher publishes plans under <prefix>/<vacuum>/plan/<segment> and
// an index under <prefix>/<vacuum>/plans.
type PlanPublisher struct {
	client mqtt.Client
	prefix string
	qos    byte
	retain bool
}

// NewPlanPublisher creates a publisher. The prefix is taken from
// MQTT_PUBLISH_PREFIX, then configPrefix, then DefaultPublishPrefix.
func NewPlanPublisher(client mqtt.Client, configPrefix string) *PlanPublisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = configPrefix
	}
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}
	return &PlanPublisher{
		client: client,
		prefix: prefix,
		qos:    1,
		retain: true,
	}
}

// PlanTopic returns the topic a plan is published on.
func (p *PlanPublisher) PlanTopic(vacuumID, segmentID string) string {
	if segmentID == "" {
		segmentID = "all"
	}
	return fmt.Sprintf("%s/%s/plan/%s", p.prefix, vacuumID, segmentID)
}

// PublishPlan publishes one plan.
func (p *PlanPublisher) PublishPlan(plan *SegmentPlan) error {
	msg := PlanMessage{
		PlanID:      plan.ID,
		VacuumID:    plan.VacuumID,
		SegmentID:   plan.SegmentID,
		SegmentName: plan.SegmentName,
		Coverage:    plan.Coverage,
		Poses:       plan.Poses,
		Timestamp:   plan.CreatedAt.Unix(),
	}
	if err := p.publish(p.PlanTopic(plan.VacuumID, plan.SegmentID), msg); err != nil {
		return err
	}
	log.Printf("Published plan for %s segment %q: %d poses, coverage %.2f",
		plan.VacuumID, plan.SegmentID, len(plan.Poses), plan.Coverage)
	return nil
}

// PublishIndex publishes the list of a vacuum's plans.
func (p *PlanPublisher) PublishIndex(vacuumID string, plans []*SegmentPlan) error {
	msg := PlanIndexMessage{VacuumID: vacuumID, Timestamp: time.Now().Unix()}
	for _, plan := range plans {
		if plan.VacuumID != vacuumID {
			continue
		}
		msg.Segments = append(msg.Segments, PlanIndexEntry{SegmentID: plan.SegmentID, PoseCount: len(plan.Poses)})
	}
	return p.publish(fmt.Sprintf("%s/%s/plans", p.prefix, vacuumID), msg)
}

func (p *PlanPublisher) publish(topic string, v interface{}) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", topic, err)
	}
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *PlanPublisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *PlanPublisher) SetRetain(retain bool) {
	p.retain = retain
}
