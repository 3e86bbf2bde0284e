package airtemp

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/air-temperature-backfill/internal/backfill"
)

func loadFixture(t *testing.T) backfill.Payload {
	t.Helper()
	b, err := os.ReadFile("testdata/2019-10-10.json")
	require.NoError(t, err)
	return backfill.Payload(b)
}

func TestChooseStation(t *testing.T) {
	records, err := ChooseStation(loadFixture(t), "S109")
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, "2019-10-10T00:00:00+08:00", records[0].Timestamp)
	require.NotNil(t, records[0].Value)
	assert.InDelta(t, 27.4, *records[0].Value, 1e-9)

	assert.Equal(t, "2019-10-10T00:01:00+08:00", records[1].Timestamp)
	assert.Nil(t, records[1].Value)

	require.NotNil(t, records[2].Value)
	assert.InDelta(t, 27.3, *records[2].Value, 1e-9, "first matching reading wins")
}

func TestChooseStation_UnknownStation(t *testing.T) {
	records, err := ChooseStation(loadFixture(t), "S999")
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, r := range records {
		assert.NotEmpty(t, r.Timestamp)
		assert.Nil(t, r.Value)
	}
}

func TestChooseStation_NoItemsIsEmptyNotError(t *testing.T) {
	records, err := ChooseStation(backfill.Payload(`{"items": []}`), "S109")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestChooseStation_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":          `<html>`,
		"missing items":     `{"metadata": {}}`,
		"null items":        `{"items": null}`,
		"missing timestamp": `{"items": [{"readings": []}]}`,
		"wrong shape":       `{"items": {"timestamp": "x"}}`,
		"missing readings":  `{"items": [{"timestamp": "2019-10-10T00:00:00+08:00"}]}`,
		"null readings":     `{"items": [{"timestamp": "2019-10-10T00:00:00+08:00", "readings": null}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ChooseStation(backfill.Payload(body), "S109")
			require.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestStations(t *testing.T) {
	stations, err := Stations(loadFixture(t))
	require.NoError(t, err)
	require.Len(t, stations, 2)
	assert.Equal(t, "S109", stations[0].ID)
	assert.Equal(t, "Ang Mo Kio Avenue 5", stations[0].Name)
	assert.InDelta(t, 103.7768, stations[1].Location.Longitude, 1e-9)
}
