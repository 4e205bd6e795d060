// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package walker

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianSpatial/services/spatial/ability"
)

// tracer for spawn spans.
var tracer = otel.Tracer("aleutian.spatial.walker")

var (
	spawnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spatial_walker_spawns_total",
		Help: "Walker spawns by spec name and outcome.",
	}, []string{"walker", "status"})

	stepsPerWalk = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spatial_walker_steps",
		Help:    "Elements visited per walker run.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})

	reportsPerWalk = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spatial_walker_reports",
		Help:    "Reports accumulated per walker run.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	abilityDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spatial_walker_ability_duration_seconds",
		Help:    "Duration of one ability invocation, tasks included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})
)

// startAbilityTimer times one ability invocation.
func startAbilityTimer(phase ability.Phase) func() {
	start := time.Now()
	return func() {
		abilityDuration.WithLabelValues(phase.String()).Observe(time.Since(start).Seconds())
	}
}

// recordSpawn records a finished spawn.
func recordSpawn(walkerName string, steps, reports int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	spawnsTotal.WithLabelValues(walkerName, status).Inc()
	stepsPerWalk.Observe(float64(steps))
	reportsPerWalk.Observe(float64(reports))
}

// startSpawnSpan opens the span covering one whole spawn.
func startSpawnSpan(ctx context.Context, walkerName string, targets int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "spatial.spawn", trace.WithAttributes(
		attribute.String("walker", walkerName),
		attribute.Int("targets", targets),
	))
}

// spanErr records an error on the span and passes it through.
func spanErr(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
