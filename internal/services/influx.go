package services

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

// TurnMeasurement is the InfluxDB measurement holding one point per dialogue turn
const TurnMeasurement = "dialogue_turn"

// InfluxService writes dialogue turn points to InfluxDB
type InfluxService struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	org      string
	bucket   string
	logger   *zap.Logger
}

// NewInfluxService creates a new InfluxDB service
func NewInfluxService(ctx context.Context, url, token, org, bucket string, logger *zap.Logger) (*InfluxService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("influx")
	logger.Info("initializing InfluxDB client", zap.String("url", url), zap.String("org", org), zap.String("bucket", bucket))

	client := influxdb2.NewClient(url, token)
	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}
	if health.Status != "pass" {
		logger.Warn("InfluxDB health check not passing", zap.String("status", string(health.Status)))
	}

	return &InfluxService{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		org:      org,
		bucket:   bucket,
		logger:   logger,
	}, nil
}

// Close releases the client
func (s *InfluxService) Close() {
	s.client.Close()
}

// turnPoint builds the point for one turn
func turnPoint(event TurnEvent) *write.Point {
	return influxdb2.NewPoint(TurnMeasurement,
		map[string]string{
			"conversation": event.Conversation,
			"intent":       orUnknown(event.Intent),
			"stage":        event.Stage,
			"outcome":      event.Outcome,
		},
		map[string]interface{}{
			"latency_ms":    float64(event.Latency) / float64(time.Millisecond),
			"missing_count": event.Missing,
			"defect":        event.Defect,
		},
		event.At)
}

// WriteTurn stores a single turn event
func (s *InfluxService) WriteTurn(ctx context.Context, event TurnEvent) error {
	if err := s.writeAPI.WritePoint(ctx, turnPoint(event)); err != nil {
		return fmt.Errorf("failed to write to InfluxDB: %w", err)
	}
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
