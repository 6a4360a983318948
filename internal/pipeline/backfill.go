package pipeline

import (
	"strings"
	"time"

	"converter/internal"
)

// FieldHistory is one earlier version of a product, reduced to the
// backfillable fields.
type FieldHistory struct {
	Brand                 *string
	CategoryNormalized    *string
	GeoNormalized         *string
	CompositionRaw        *string
	CompositionNormalized *string
	PackageQuantity       *float64
	PackageUnit           *internal.PackageUnit

	ObservedAt time.Time
}

// HistoryOf reduces a normalized record to its backfillable fields.
func HistoryOf(record *internal.NormalizedProduct) FieldHistory {
	return FieldHistory{
		Brand:                 record.Brand,
		CategoryNormalized:    record.CategoryNormalized,
		GeoNormalized:         record.GeoNormalized,
		CompositionRaw:        record.CompositionRaw,
		CompositionNormalized: record.CompositionNormalized,
		PackageQuantity:       record.PackageQuantity,
		PackageUnit:           record.PackageUnit,
		ObservedAt:            record.ObservedAt,
	}
}

// BackfillFromHistory fills each still-missing field of the record
// from the temporally nearest version that has it. Set fields are
// never overwritten.
func BackfillFromHistory(record *internal.NormalizedProduct, history []FieldHistory) {
	if len(history) == 0 {
		return
	}
	target := record.ObservedAt

	if missingString(record.Brand) {
		record.Brand = closestString(history, target, func(h FieldHistory) *string { return h.Brand })
	}
	if missingString(record.CategoryNormalized) {
		record.CategoryNormalized = closestString(history, target, func(h FieldHistory) *string { return h.CategoryNormalized })
	}
	if missingString(record.GeoNormalized) {
		record.GeoNormalized = closestString(history, target, func(h FieldHistory) *string { return h.GeoNormalized })
	}
	if missingString(record.CompositionRaw) {
		record.CompositionRaw = closestString(history, target, func(h FieldHistory) *string { return h.CompositionRaw })
	}
	if missingString(record.CompositionNormalized) {
		record.CompositionNormalized = closestString(history, target, func(h FieldHistory) *string { return h.CompositionNormalized })
	}
	if record.PackageQuantity == nil {
		record.PackageQuantity = closestFloat(history, target, func(h FieldHistory) *float64 { return h.PackageQuantity })
	}
	if record.PackageUnit == nil {
		record.PackageUnit = closestPackageUnit(history, target)
	}
}

func missingString(v *string) bool {
	return v == nil || strings.TrimSpace(*v) == ""
}

func closestString(history []FieldHistory, target time.Time, get func(FieldHistory) *string) *string {
	var nearest *string
	var nearestDelta time.Duration
	for _, item := range history {
		value := get(item)
		if missingString(value) {
			continue
		}
		delta := absDuration(item.ObservedAt.Sub(target))
		if nearest == nil || delta < nearestDelta {
			nearest = value
			nearestDelta = delta
		}
	}
	return nearest
}

func closestFloat(history []FieldHistory, target time.Time, get func(FieldHistory) *float64) *float64 {
	var nearest *float64
	var nearestDelta time.Duration
	for _, item := range history {
		value := get(item)
		if value == nil {
			continue
		}
		delta := absDuration(item.ObservedAt.Sub(target))
		if nearest == nil || delta < nearestDelta {
			nearest = value
			nearestDelta = delta
		}
	}
	return nearest
}

func closestPackageUnit(history []FieldHistory, target time.Time) *internal.PackageUnit {
	var nearest *internal.PackageUnit
	var nearestDelta time.Duration
	for _, item := range history {
		if item.PackageUnit == nil {
			continue
		}
		delta := absDuration(item.ObservedAt.Sub(target))
		if nearest == nil || delta < nearestDelta {
			nearest = item.PackageUnit
			nearestDelta = delta
		}
	}
	return nearest
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
