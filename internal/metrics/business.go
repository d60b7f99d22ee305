package metrics

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	meter = otel.Meter("kalam/business")

	// Transcription metrics
	TranscriptionSubmissionsTotal metric.Int64Counter
	TranscriptionSubmitDuration   metric.Float64Histogram

	// Status resolution metrics
	StatusResolutionsTotal metric.Int64Counter

	// External API metrics
	ProviderAPICallsTotal metric.Int64Counter
	ProviderAPIDuration   metric.Float64Histogram

	// Language detection metrics
	LanguageDetectionsTotal metric.Int64Counter
)

func Init() error {
	var err error

	TranscriptionSubmissionsTotal, err = meter.Int64Counter(
		"transcription.submissions.total",
		metric.WithDescription("Total number of transcription submissions by provider and outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	TranscriptionSubmitDuration, err = meter.Float64Histogram(
		"transcription.submit.duration",
		metric.WithDescription("Duration of transcription submission including upload"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2, 5, 10, 30, 60),
	)
	if err != nil {
		return err
	}

	StatusResolutionsTotal, err = meter.Int64Counter(
		"transcription.status.resolutions.total",
		metric.WithDescription("Total number of status resolutions by tier (store or provider)"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	ProviderAPICallsTotal, err = meter.Int64Counter(
		"provider.api.calls.total",
		metric.WithDescription("Total number of speech-to-text provider API calls"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	ProviderAPIDuration, err = meter.Float64Histogram(
		"provider.api.duration",
		metric.WithDescription("Duration of speech-to-text provider API calls"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2, 5, 10, 30),
	)
	if err != nil {
		return err
	}

	LanguageDetectionsTotal, err = meter.Int64Counter(
		"language.detections.total",
		metric.WithDescription("Total number of language detection requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	return nil
}
