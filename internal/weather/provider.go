package weather

import (
	"context"
)

// Provider abstracts a forecast source (e.g. Tomorrow.io, Open-Meteo).
// Fetch returns at most days daily entries; failures are *apperr.ProviderError.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, location string, days int) (ForecastBundle, error)
}

// ConditionForTomorrowCode maps Tomorrow.io weather codes onto a Condition.
func ConditionForTomorrowCode(f Field[int]) Condition {
	code, ok := f.Get()
	if !ok {
		return ConditionUnknown
	}
	switch {
	case code == 1000 || code == 1100:
		return ConditionClear
	case code == 1001 || code == 1101 || code == 1102:
		return ConditionCloudy
	case code == 2000 || code == 2100:
		return ConditionMist
	case code >= 4000 && code < 5000, code >= 6000 && code < 7000:
		return ConditionRain
	case code >= 5000 && code < 6000, code >= 7000 && code < 8000:
		return ConditionSnow
	case code == 8000:
		return ConditionStorm
	default:
		return ConditionUnknown
	}
}

// ConditionForWMOCode maps WMO weather interpretation codes (Open-Meteo) onto a Condition.
func ConditionForWMOCode(f Field[int]) Condition {
	code, ok := f.Get()
	if !ok {
		return ConditionUnknown
	}
	switch {
	case code == 0:
		return ConditionClear
	case code >= 1 && code <= 3:
		return ConditionCloudy
	case code == 45 || code == 48:
		return ConditionMist
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return ConditionRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return ConditionSnow
	case code >= 95:
		return ConditionStorm
	default:
		return ConditionUnknown
	}
}
