// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package response

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	responsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pret_responses_total",
			Help: "Number of responses written by the response pipeline.",
		},
		[]string{"route", "kind", "status"},
	)
	handlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pret_handler_duration_seconds",
			Help:    "Time from request start until the response was written.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(responsesTotal)
	prometheus.MustRegister(handlerDuration)
}

func observe(route *Route, status string, start time.Time) {
	kind := string(route.Kind)
	if !route.Intercept {
		kind = "bypass"
	}
	responsesTotal.WithLabelValues(route.Key.String(), kind, status).Inc()
	handlerDuration.WithLabelValues(route.Key.String()).Observe(time.Since(start).Seconds())
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}
