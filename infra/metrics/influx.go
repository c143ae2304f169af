package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/voluntr/engine/core/metrics"
	"github.com/voluntr/engine/infra/logger"
)

// InfluxSink writes engine events to an InfluxDB instance.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClientWithOptions(url, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink when the health check fails, so a down metrics backend never
// blocks engine start.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close shuts the client down.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordRouteResult writes one point per routing decision.
func (s *InfluxSink) RecordRouteResult(res []coremetrics.RouteResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, r := range res {
		p := write.NewPointWithMeasurement("route_result").
			AddTag("priority", string(r.Priority)).
			AddTag("assigned", strconv.FormatBool(r.Assigned)).
			AddTag("rescued", strconv.FormatBool(r.Rescued)).
			AddField("score", r.Score).
			AddField("session_id", r.SessionID).
			AddField("volunteer", r.VolunteerAddress).
			SetTime(r.RouteTime)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordSessionOutcome writes a terminal session outcome.
func (s *InfluxSink) RecordSessionOutcome(ev coremetrics.OutcomeEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("session_outcome").
		AddTag("status", string(ev.Status)).
		AddTag("rating", strconv.Itoa(ev.Rating)).
		AddField("points", ev.Points).
		AddField("messages", ev.Messages).
		AddField("resolution_latency_s", ev.ResolutionLatency.Seconds()).
		AddField("session_id", ev.SessionID).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSweep writes a sweep summary.
func (s *InfluxSink) RecordSweep(res coremetrics.SweepResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("sweep").
		AddField("rescued", res.Rescued).
		AddField("requeued", res.Requeued).
		AddField("errors", res.Errors).
		SetTime(res.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordFleetStats writes directory aggregates.
func (s *InfluxSink) RecordFleetStats(st coremetrics.FleetStats) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("fleet_stats").
		AddField("volunteers", st.Volunteers).
		AddField("available", st.Available).
		AddField("mean_rating", st.MeanRating).
		AddField("stddev_rating", st.StdDevRating).
		AddField("mean_response_seconds", st.MeanResponseSeconds).
		SetTime(st.Time)
	return s.writeAPI.WritePoint(ctx, p)
}
