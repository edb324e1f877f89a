package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"

	"twiddle-pid-core/control"
	"twiddle-pid-core/utils"
)

type fakeCANReader struct {
	frames []can.Frame
	closed bool
}

func (r *fakeCANReader) ReadFrame(ctx context.Context) (can.Frame, error) {
	if err := ctx.Err(); err != nil {
		return can.Frame{}, err
	}
	if len(r.frames) == 0 {
		return can.Frame{}, utils.ErrReaderClosed
	}
	f := r.frames[0]
	r.frames = r.frames[1:]
	return f, nil
}

func (r *fakeCANReader) Close() error {
	r.closed = true
	return nil
}

type fakeCANWriter struct {
	frames []can.Frame
	closed bool
}

func (w *fakeCANWriter) WriteFrame(_ context.Context, f can.Frame) error {
	w.frames = append(w.frames, f)
	return nil
}

func (w *fakeCANWriter) Close() error {
	w.closed = true
	return nil
}

func loadTestMap(t *testing.T) *utils.CANMap {
	t.Helper()
	cmap, err := utils.LoadCANMap("../config/can/can_map.csv")
	require.NoError(t, err)
	return cmap
}

func telemetryFrame(t *testing.T, cmap *utils.CANMap, cte, speed, heading float64) can.Frame {
	t.Helper()
	f, err := cmap.EncodeFrame("VEHICLE_TELEMETRY", map[string]float64{
		"cte_m": cte, "speed_kph": speed, "heading_deg": heading,
	})
	require.NoError(t, err)
	return f
}

func TestCANLink_Next(t *testing.T) {
	cmap := loadTestMap(t)
	reader := &fakeCANReader{frames: []can.Frame{
		{ID: 0x123, Length: 2},
		{ID: 0x300, Length: 2}, // short frame is skipped
		telemetryFrame(t, cmap, -0.25, 42.5, 3.5),
	}}
	link, err := NewCANLink(cmap, DefaultRunConfig().CAN, reader, &fakeCANWriter{}, discardLogger())
	require.NoError(t, err)

	tel, err := link.Next(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, -0.25, tel.CTE, 1e-9)
	assert.InDelta(t, 42.5, tel.Speed, 1e-9)
	assert.InDelta(t, 3.5, tel.Heading, 1e-9)

	_, err = link.Next(context.Background())
	assert.ErrorIs(t, err, utils.ErrReaderClosed)
}

func TestCANLink_SendAndRestart(t *testing.T) {
	cmap := loadTestMap(t)
	writer := &fakeCANWriter{}
	reader := &fakeCANReader{}
	link, err := NewCANLink(cmap, DefaultRunConfig().CAN, reader, writer, discardLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, link.Send(ctx, control.Command{Steering: -0.5, Throttle: 0.3}))
	require.NoError(t, link.Restart(ctx))
	require.Len(t, writer.frames, 2)

	got, err := cmap.DecodeFrame(writer.frames[0])
	require.NoError(t, err)
	assert.Equal(t, uint32(0x200), writer.frames[0].ID)
	assert.InDelta(t, -0.5, got["steering_cmd"], 1e-9)
	assert.InDelta(t, 0.3, got["throttle_cmd"], 1e-9)
	assert.Equal(t, 0.0, got["restart_req"])

	got, err = cmap.DecodeFrame(writer.frames[1])
	require.NoError(t, err)
	assert.Equal(t, 0.0, got["steering_cmd"])
	assert.Equal(t, 1.0, got["restart_req"])

	link.Close()
	assert.True(t, reader.closed)
	assert.True(t, writer.closed)
}

func TestCANLink_RunsDriver(t *testing.T) {
	cmap := loadTestMap(t)
	var frames []can.Frame
	for i := 0; i < 4; i++ {
		frames = append(frames, telemetryFrame(t, cmap, 0.4, 30, 0))
	}
	writer := &fakeCANWriter{}
	link, err := NewCANLink(cmap, DefaultRunConfig().CAN, &fakeCANReader{frames: frames}, writer, discardLogger())
	require.NoError(t, err)

	r, err := NewRunner(RunnerConfig{Name: "can", Driver: control.DefaultDriverConfig()}, discardLogger())
	require.NoError(t, err)
	err = r.Run(context.Background(), link, link)
	assert.ErrorIs(t, err, utils.ErrReaderClosed)
	require.Len(t, writer.frames, 4)

	got, err := cmap.DecodeFrame(writer.frames[3])
	require.NoError(t, err)
	assert.Less(t, got["steering_cmd"], 0.0)
}

func TestNewCANLink_Rejects(t *testing.T) {
	cmap := loadTestMap(t)
	tests := map[string]CANConfig{
		"unknown rx": {TelemetryFrame: "NOPE", CommandFrame: "STEER_CMD"},
		"unknown tx": {TelemetryFrame: "VEHICLE_TELEMETRY", CommandFrame: "NOPE"},
		"swapped":    {TelemetryFrame: "STEER_CMD", CommandFrame: "VEHICLE_TELEMETRY"},
		"rx as tx":   {TelemetryFrame: "VEHICLE_TELEMETRY", CommandFrame: "VEHICLE_TELEMETRY"},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewCANLink(cmap, cfg, &fakeCANReader{}, &fakeCANWriter{}, discardLogger())
			assert.Error(t, err)
		})
	}
}
