package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	occupancydomain "github.com/smallbiznis/dormhub/internal/occupancy/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return d
}

func twoOccupantRoom(t *testing.T) occupancydomain.RoomSnapshot {
	return occupancydomain.RoomSnapshot{
		RoomID:        1,
		RoomNumber:    "A101",
		RoomPrice:     dec(t, "3500"),
		OccupantCount: 2,
		Occupants: []occupancydomain.Occupant{
			{TenantID: 11, TenantName: "Ana Lee", OccupancyID: 21},
			{TenantID: 12, TenantName: "Bo Chen", OccupancyID: 22},
		},
	}
}

func defaultRates(t *testing.T) Rates {
	return Rates{WaterRate: dec(t, "18"), ElectricityRate: dec(t, "8")}
}

func TestCalculate_ForwardMeter(t *testing.T) {
	got := Calculate(twoOccupantRoom(t), CalculationInput{
		WaterUnits:           dec(t, "1"),
		PreviousMeterReading: dec(t, "120.0"),
		CurrentMeterReading:  dec(t, "150.0"),
	}, defaultRates(t))

	assert.True(t, got.ElectricityUnits.Equal(dec(t, "30")), "units %s", got.ElectricityUnits)
	assert.True(t, got.ElectricityCost.Equal(dec(t, "240")), "electricity %s", got.ElectricityCost)
	assert.True(t, got.WaterCost.Equal(dec(t, "36")), "water %s", got.WaterCost)
	assert.True(t, got.RoomRent.Equal(dec(t, "3500")))
	assert.True(t, got.Total.Equal(dec(t, "3776")), "total %s", got.Total)
	assert.False(t, got.MeterRegressed)
	assert.Equal(t, 2, got.OccupantCount)
}

func TestCalculate_RegressedMeterClampsToZero(t *testing.T) {
	got := Calculate(twoOccupantRoom(t), CalculationInput{
		WaterUnits:           dec(t, "1"),
		PreviousMeterReading: dec(t, "120.0"),
		CurrentMeterReading:  dec(t, "110.0"),
	}, defaultRates(t))

	assert.True(t, got.ElectricityUnits.IsZero())
	assert.True(t, got.ElectricityCost.IsZero())
	assert.True(t, got.Total.Equal(dec(t, "3536")), "total %s", got.Total)
	assert.True(t, got.MeterRegressed)
}

func TestCalculate_EmptyRoomBillsOneOccupantOfWater(t *testing.T) {
	snapshot := twoOccupantRoom(t)
	snapshot.OccupantCount = 0
	snapshot.Occupants = nil

	got := Calculate(snapshot, CalculationInput{
		WaterUnits:           dec(t, "2"),
		PreviousMeterReading: dec(t, "0"),
		CurrentMeterReading:  dec(t, "0"),
	}, defaultRates(t))

	assert.Equal(t, 1, got.OccupantCount)
	assert.True(t, got.WaterCost.Equal(dec(t, "36")))
}

func TestCalculate_TotalIsExactSumOfRoundedParts(t *testing.T) {
	rates := Rates{WaterRate: dec(t, "17.333"), ElectricityRate: dec(t, "7.777")}
	pairs := [][2]string{
		{"0", "0.001"},
		{"100.125", "133.457"},
		{"999.999", "1000"},
		{"5", "4.5"},
		{"12.3", "98.76"},
	}
	for _, pair := range pairs {
		got := Calculate(twoOccupantRoom(t), CalculationInput{
			WaterUnits:           dec(t, "1.25"),
			PreviousMeterReading: dec(t, pair[0]),
			CurrentMeterReading:  dec(t, pair[1]),
		}, rates)

		sum := got.RoomRent.Add(got.WaterCost).Add(got.ElectricityCost)
		assert.True(t, got.Total.Equal(sum), "total %s != %s", got.Total, sum)
		assert.False(t, got.ElectricityUnits.IsNegative())
		assert.LessOrEqual(t, -got.ElectricityCost.Exponent(), int32(2))
	}
}

func TestValidateCalculationInput(t *testing.T) {
	assert.NoError(t, ValidateCalculationInput(CalculationInput{}))
	assert.ErrorIs(t, ValidateCalculationInput(CalculationInput{WaterUnits: dec(t, "-1")}), ErrInvalidWaterUnits)
	assert.ErrorIs(t, ValidateCalculationInput(CalculationInput{CurrentMeterReading: dec(t, "-0.5")}), ErrInvalidMeterReading)
}
