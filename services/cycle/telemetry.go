package cycle

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const library_name = "sahibinden.services.cycle"

var tracer = otel.Tracer(library_name)
var meter = otel.Meter(library_name)

func SetTracerProvider(provider trace.TracerProvider) {
	tracer = provider.Tracer(library_name)
}
