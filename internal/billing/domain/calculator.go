package domain

import (
	"github.com/shopspring/decimal"
	occupancydomain "github.com/smallbiznis/dormhub/internal/occupancy/domain"
)

type Rates struct {
	WaterRate       decimal.Decimal
	ElectricityRate decimal.Decimal
}

// CalculationInput carries operator-entered values. WaterUnits is a
// per-occupant multiplier, not a meter reading.
type CalculationInput struct {
	WaterUnits           decimal.Decimal
	PreviousMeterReading decimal.Decimal
	CurrentMeterReading  decimal.Decimal
}

type Breakdown struct {
	OccupantCount        int             `json:"occupant_count"`
	WaterUnits           decimal.Decimal `json:"water_units"`
	PreviousMeterReading decimal.Decimal `json:"previous_meter_reading"`
	CurrentMeterReading  decimal.Decimal `json:"current_meter_reading"`
	RoomRent             decimal.Decimal `json:"room_rent"`
	WaterCost            decimal.Decimal `json:"water_cost"`
	ElectricityUnits     decimal.Decimal `json:"electricity_units"`
	ElectricityCost      decimal.Decimal `json:"electricity_cost"`
	Total                decimal.Decimal `json:"total"`
	// MeterRegressed is set when the current reading is below the previous
	// one; electricity is clamped to zero units either way.
	MeterRegressed bool `json:"meter_regressed"`
}

// Calculate is pure. Each cost is rounded to currency precision before
// summing so the total always equals the sum of its displayed parts.
func Calculate(snapshot occupancydomain.RoomSnapshot, in CalculationInput, rates Rates) Breakdown {
	occupants := snapshot.OccupantCount
	if occupants < 1 {
		occupants = 1
	}

	electricityUnits := in.CurrentMeterReading.Sub(in.PreviousMeterReading)
	regressed := electricityUnits.IsNegative()
	if regressed {
		electricityUnits = decimal.Zero
	}

	roomRent := snapshot.RoomPrice.Round(2)
	waterCost := in.WaterUnits.Mul(decimal.NewFromInt(int64(occupants))).Mul(rates.WaterRate).Round(2)
	electricityCost := electricityUnits.Mul(rates.ElectricityRate).Round(2)

	return Breakdown{
		OccupantCount:        occupants,
		WaterUnits:           in.WaterUnits,
		PreviousMeterReading: in.PreviousMeterReading,
		CurrentMeterReading:  in.CurrentMeterReading,
		RoomRent:             roomRent,
		WaterCost:            waterCost,
		ElectricityUnits:     electricityUnits,
		ElectricityCost:      electricityCost,
		Total:                roomRent.Add(waterCost).Add(electricityCost),
		MeterRegressed:       regressed,
	}
}

// ValidateCalculationInput rejects values the calculator must never see.
func ValidateCalculationInput(in CalculationInput) error {
	if in.WaterUnits.IsNegative() {
		return ErrInvalidWaterUnits
	}
	if in.PreviousMeterReading.IsNegative() || in.CurrentMeterReading.IsNegative() {
		return ErrInvalidMeterReading
	}
	return nil
}
