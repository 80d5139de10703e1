// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("workspace_id", id).Info("workspace bound")
//
// Request-scoped logging picks up request, user and workspace ids placed on
// the context by the HTTP middleware:
//
//	observability.FromContext(ctx).WithError(err).Error("membership lookup failed")
//
// Security anomalies go through SecurityEvent so they are tagged
// security_event=true and counted in tenantgate_security_events_total:
//
//	logger.SecurityEvent("tenant_mismatch", map[string]interface{}{"resource_id": id})
//
// # Prometheus Metrics
//
// Collectors are package-level and registered once:
//
//	registry := prometheus.NewRegistry()
//	observability.RegisterMetrics(registry)
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	router.HandleFunc("/healthz", checker.Liveness)
//	router.HandleFunc("/readyz", checker.Readiness)
//
// # OpenTelemetry
//
//	tp, err := observability.InitTracing(ctx, cfg, logger)
//	defer observability.ShutdownTracing(ctx, tp, logger)
//	ctx, span := observability.Tracer().Start(ctx, "guard.Evaluate")
package observability
