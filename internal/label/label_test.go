package label

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func eciaLabel(fields ...string) string {
	s := "[)>\x1e06"
	for _, f := range fields {
		s += "\x1d" + f
	}
	return s + "\x1e\x04"
}

func TestParse_FullLabel(t *testing.T) {
	raw := eciaLabel("PCUST-4411", "1PRC0402FR-0710KL", "Q5000", "1TLOT77A", "9D2317", "4LCN")

	l, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "CUST-4411", l.CustomerPartNumber)
	require.Equal(t, "RC0402FR-0710KL", l.ManufacturerPartNumber)
	require.Equal(t, 5000, l.Quantity)
	require.Equal(t, "LOT77A", l.LotCode)
	require.Equal(t, "2317", l.DateCode)
	require.Equal(t, "CN", l.CountryOfOrigin)
}

func TestParse_UnknownIdentifiersKeptInRaw(t *testing.T) {
	raw := eciaLabel("1PABC-1", "Q10", "4KPO-9981")

	l, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "PO-9981", l.Raw["4K"])
}

func TestParse_MissingEnvelope(t *testing.T) {
	_, err := Parse("1PABC-1\x1dQ10")
	require.Error(t, err)
	require.Contains(t, err.Error(), "envelope")
}

func TestParse_BadQuantity(t *testing.T) {
	_, err := Parse(eciaLabel("1PABC-1", "Qmany"))
	require.Error(t, err)
}

func TestParse_NoPartNumber(t *testing.T) {
	_, err := Parse(eciaLabel("Q10", "1TLOT1"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "part number")
}
