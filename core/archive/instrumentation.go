package archive

import "go.opentelemetry.io/otel"

const scopeName = "github.com/koscakluka/ema-realtime/core/archive"

var tracer = otel.Tracer(scopeName)
