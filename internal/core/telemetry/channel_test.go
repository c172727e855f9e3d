package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeChannel is a test helper that writes a single channel YAML file into dir.
func writeChannel(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestFileSystemChannelRepository_LoadAndDefaults(t *testing.T) {
	dir := t.TempDir()
	writeChannel(t, dir, "air.yaml", `
channel_id: 12397
description: "Air Quality Monitor"
anomaly_fields: [1, 2]
`)
	writeChannel(t, dir, "weather.yml", `
channel_id: 9
granularities: ["hourly", "DAILY", "weekly"]
anomaly_threshold: 2.5
lookback_days: 14
`)
	writeChannel(t, dir, "notes.txt", "ignored")
	writeChannel(t, dir, "empty.yaml", "# nothing here\n")

	repo, err := NewFileSystemChannelRepository(dir)
	require.NoError(t, err)

	channels := repo.Channels()
	require.Len(t, channels, 2)
	require.Equal(t, int64(9), channels[0].ChannelID)
	require.Equal(t, []Granularity{GranularityHourly, GranularityDaily, GranularityWeekly}, channels[0].Granularities)
	require.Equal(t, 2.5, channels[0].AnomalyThreshold)
	require.Equal(t, 14, channels[0].LookbackDays)

	air := channels[1]
	require.Equal(t, int64(12397), air.ChannelID)
	require.Equal(t, "Air Quality Monitor", air.Description)
	require.Equal(t, []Granularity{GranularityHourly, GranularityDaily}, air.Granularities)
	require.Equal(t, []FieldNumber{1, 2}, air.AnomalyFields)
	require.Equal(t, DefaultZThreshold, air.AnomalyThreshold)
	require.Equal(t, DefaultAnomalyLookbackDays, air.LookbackDays)
	require.Len(t, air.Fingerprint, 64)
}

func TestFileSystemChannelRepository_MissingDirIsEmpty(t *testing.T) {
	repo, err := NewFileSystemChannelRepository(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	require.Empty(t, repo.Channels())
}

func TestFileSystemChannelRepository_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		wantErr error
	}{
		{
			name:    "bad granularity",
			files:   map[string]string{"a.yaml": "channel_id: 1\ngranularities: [\"MONTHLY\"]\n"},
			wantErr: ErrInvalidGranularity,
		},
		{
			name:    "bad field",
			files:   map[string]string{"a.yaml": "channel_id: 1\nanomaly_fields: [9]\n"},
			wantErr: ErrInvalidField,
		},
		{
			name:    "negative threshold",
			files:   map[string]string{"a.yaml": "channel_id: 1\nanomaly_threshold: -1\n"},
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "zero threshold",
			files:   map[string]string{"a.yaml": "channel_id: 1\nanomaly_threshold: 0\n"},
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "nan threshold",
			files:   map[string]string{"a.yaml": "channel_id: 1\nanomaly_threshold: .nan\n"},
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "infinite threshold",
			files:   map[string]string{"a.yaml": "channel_id: 1\nanomaly_threshold: .inf\n"},
			wantErr: ErrInvalidArgument,
		},
		{
			name: "duplicate channel",
			files: map[string]string{
				"a.yaml": "channel_id: 1\n",
				"b.yaml": "channel_id: 1\n",
			},
		},
		{
			name:  "malformed yaml",
			files: map[string]string{"a.yaml": "channel_id: [\n"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tc.files {
				writeChannel(t, dir, name, content)
			}
			_, err := NewFileSystemChannelRepository(dir)
			require.Error(t, err)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}
