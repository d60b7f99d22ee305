// Package telemetry provides OpenTelemetry initialization and helpers
// for distributed tracing across the Kalam transcription backend.
//
// The package configures OTLP HTTP export for traces and logs, with
// support for hosted collectors and local Tempo backends.
package telemetry
