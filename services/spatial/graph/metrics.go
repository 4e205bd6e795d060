// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for graph operations.
var (
	tracer = otel.Tracer("aleutian.spatial.graph")
	meter  = otel.Meter("aleutian.spatial.graph")
)

// Live element gauges, exported for capacity monitoring.
var (
	nodeGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spatial_graph_nodes",
		Help: "Current number of live nodes in the store",
	})

	edgeGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spatial_graph_edges",
		Help: "Current number of live edges in the store",
	})
)

// Metrics for element lifecycle and queries.
var (
	elementsCreated   metric.Int64Counter
	elementsDeleted   metric.Int64Counter
	neighborsLatency  metric.Float64Histogram
	rootLoadLatency   metric.Float64Histogram
	componentsStamped metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		elementsCreated, err = meter.Int64Counter(
			"spatial_graph_elements_created_total",
			metric.WithDescription("Total elements created, by kind and type"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		elementsDeleted, err = meter.Int64Counter(
			"spatial_graph_elements_deleted_total",
			metric.WithDescription("Total elements deleted, incident edges included"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		neighborsLatency, err = meter.Float64Histogram(
			"spatial_graph_neighbors_duration_seconds",
			metric.WithDescription("Duration of neighbor queries"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rootLoadLatency, err = meter.Float64Histogram(
			"spatial_graph_root_load_duration_seconds",
			metric.WithDescription("Duration of root closure loads from the collaborator"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		componentsStamped, err = meter.Int64Counter(
			"spatial_graph_elements_stamped_total",
			metric.WithDescription("Elements stamped persistent by root-closure propagation"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordNodeCreated records a node creation.
func recordNodeCreated(ctx context.Context, typeName string) {
	nodeGauge.Inc()
	if initMetrics() != nil {
		return
	}
	elementsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", KindNode.String()),
		attribute.String("elem_type", typeName),
	))
}

// recordEdgeCreated records an edge creation.
func recordEdgeCreated(ctx context.Context, typeName string) {
	edgeGauge.Inc()
	if initMetrics() != nil {
		return
	}
	elementsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", KindEdge.String()),
		attribute.String("elem_type", typeName),
	))
}

// recordDelete records a delete with the number of elements removed
// (the target plus severed edges).
func recordDelete(ctx context.Context, removed int) {
	if initMetrics() != nil {
		return
	}
	elementsDeleted.Add(ctx, int64(removed))
}

// recordStamped records elements made persistent by closure propagation.
func recordStamped(ctx context.Context, count int) {
	if initMetrics() != nil {
		return
	}
	componentsStamped.Add(ctx, int64(count))
}

// setElementGauges synchronizes the prometheus gauges with live counts.
// Called after bulk changes (root loads, node deletes with severed edges).
func setElementGauges(nodes, edges int64) {
	nodeGauge.Set(float64(nodes))
	edgeGauge.Set(float64(edges))
}

// startNeighborsTimer starts a neighbor-query timer. The returned func
// records the duration and result count.
func startNeighborsTimer(ctx context.Context) func(resultCount int) {
	start := time.Now()
	return func(resultCount int) {
		if initMetrics() != nil {
			return
		}
		neighborsLatency.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.Int("result_count", resultCount)),
		)
	}
}

// startRootLoadTimer starts a root-load timer.
func startRootLoadTimer(ctx context.Context) func(elementCount int) {
	start := time.Now()
	return func(elementCount int) {
		if initMetrics() != nil {
			return
		}
		rootLoadLatency.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.Int("element_count", elementCount)),
		)
	}
}

// startStoreSpan creates a span for a store operation.
func startStoreSpan(ctx context.Context, op, typeName string) (context.Context, trace.Span) {
	opts := []trace.SpanStartOption{}
	if typeName != "" {
		opts = append(opts, trace.WithAttributes(attribute.String("elem_type", typeName)))
	}
	return tracer.Start(ctx, op, opts...)
}

// spanErr records an error on the span and passes it through.
func spanErr(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
