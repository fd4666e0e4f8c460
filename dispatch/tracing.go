package dispatch

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("github.com/pure-golang/mailmerge/dispatch")
