// Package advisory turns a forecast into farmer-facing alerts and guidance.
//
// Evaluate is a pure function of its inputs. Thresholds are fixed; a rule whose
// input field is unavailable does not fire.
package advisory

import (
	"fmt"
	"strings"

	"github.com/i474232898/agri-assist/internal/weather"
)

// Alert thresholds.
const (
	HeavyRainSoonPct  = 70
	HeatStressC       = 40.0
	HighWindMS        = 15.0
	DailyHeavyRainPct = 80
	DailyExtremeHeatC = 40.0
)

// Crop selects the crop-specific advisory branch.
type Crop string

const (
	CropWheat   Crop = "wheat"
	CropBarley  Crop = "barley"
	CropRice    Crop = "rice"
	CropMaize   Crop = "maize"
	CropGeneric Crop = "generic"
)

// ParseCrop maps a user selection onto a Crop, ignoring case. "corn" is maize;
// anything unrecognized is generic.
func ParseCrop(s string) Crop {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wheat":
		return CropWheat
	case "barley":
		return CropBarley
	case "rice", "paddy":
		return CropRice
	case "maize", "corn":
		return CropMaize
	default:
		return CropGeneric
	}
}

// Advisory is the evaluation result for one forecast.
type Advisory struct {
	Crop       Crop     `json:"crop"`
	Alerts     []string `json:"alerts"`
	CropAdvice string   `json:"cropAdvice"`
	Irrigation string   `json:"irrigation"`
}

// Crop advisory texts.
const (
	AdvicePostponeSpraying  = "Rain likely: postpone spraying and fertilizer application."
	AdviceIrrigateLowSun    = "Hot conditions: irrigate at low-sun hours (early morning or evening)."
	AdviceNormalOperations  = "Conditions favourable: normal operations."
	AdviceRiceIrrigate      = "Dry and warm: consider irrigation to maintain standing water."
	AdviceRiceMonitor       = "Monitor standing water levels in the paddy."
	AdviceMaizeDrainage     = "Rain likely: ensure drainage to avoid waterlogging."
	AdviceMaizeIrrigate     = "Irrigate during dry spells, especially at tasseling and silking."
	AdviceGenericAvoidSpray = "Rain likely: avoid spraying, protect harvest."
	AdviceGenericMonitor    = "Monitor conditions and follow routine field operations."
)

// Irrigation guidance texts.
const (
	IrrigationNoData   = "Insufficient data for irrigation guidance."
	IrrigationPostpone = "Rain expected tomorrow: postpone irrigation."
	IrrigationTomorrow = "Hot and dry tomorrow: irrigate tomorrow morning."
	IrrigationDefer    = "Cool and dry tomorrow: irrigation may be deferred."
	IrrigationMonitor  = "Monitor; use soil checks before irrigating."
)

// Evaluate runs every rule against bundle for the given crop.
func Evaluate(bundle weather.ForecastBundle, crop Crop) Advisory {
	return Advisory{
		Crop:       crop,
		Alerts:     Alerts(bundle),
		CropAdvice: CropAdvice(bundle.Current, crop),
		Irrigation: IrrigationAdvice(bundle.Daily),
	}
}

// Alerts evaluates the independent severe-weather rules. Several may fire.
func Alerts(bundle weather.ForecastBundle) []string {
	alerts := []string{}
	cur := bundle.Current

	if cur.PrecipitationProbability.AtLeast(HeavyRainSoonPct) {
		alerts = append(alerts, fmt.Sprintf("Heavy rain likely soon: %s%% chance of precipitation.", cur.PrecipitationProbability))
	}
	if cur.Temperature.AtLeast(HeatStressC) {
		alerts = append(alerts, fmt.Sprintf("Heat stress risk: current temperature %s °C.", cur.Temperature))
	}
	if cur.WindSpeed.AtLeast(HighWindMS) {
		alerts = append(alerts, fmt.Sprintf("High wind: %s m/s, secure structures and avoid spraying.", cur.WindSpeed))
	}

	for _, day := range bundle.Daily {
		if day.RainChance.AtLeast(DailyHeavyRainPct) {
			alerts = append(alerts, fmt.Sprintf("%s: heavy rain expected (%s%% chance).", day.Date, day.RainChance))
		}
		if day.TempMax.AtLeast(DailyExtremeHeatC) {
			alerts = append(alerts, fmt.Sprintf("%s: extreme heat expected (max %s °C).", day.Date, day.TempMax))
		}
	}
	return alerts
}

// CropAdvice returns the first matching advisory for crop from current conditions.
func CropAdvice(cur weather.Snapshot, crop Crop) string {
	rain := cur.PrecipitationProbability
	temp := cur.Temperature

	switch crop {
	case CropWheat, CropBarley:
		switch {
		case rain.AtLeast(40):
			return AdvicePostponeSpraying
		case temp.AtLeast(35):
			return AdviceIrrigateLowSun
		default:
			return AdviceNormalOperations
		}
	case CropRice:
		if rain.AtMost(20) && temp.AtLeast(30) {
			return AdviceRiceIrrigate
		}
		return AdviceRiceMonitor
	case CropMaize:
		if rain.AtLeast(50) {
			return AdviceMaizeDrainage
		}
		return AdviceMaizeIrrigate
	default:
		if rain.AtLeast(50) {
			return AdviceGenericAvoidSpray
		}
		return AdviceGenericMonitor
	}
}

// IrrigationAdvice looks at the first daily entry only.
func IrrigationAdvice(daily []weather.DailyForecast) string {
	if len(daily) == 0 {
		return IrrigationNoData
	}
	next := daily[0]
	switch {
	case next.RainChance.AtLeast(50):
		return IrrigationPostpone
	case next.TempMax.AtLeast(34) && next.RainChance.AtMost(20):
		return IrrigationTomorrow
	case next.TempMax.Below(20) && next.RainChance.AtMost(20):
		return IrrigationDefer
	default:
		return IrrigationMonitor
	}
}
