package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"
)

const testCANMap = `direction,frame_id,frame_name,cycle_ms,dlc,signal_name,start_bit,bit_length,endianness,signed,factor,offset,min,max,default,unit,comment
rx,0x300,VEHICLE_TELEMETRY,20,6,cte_m,0,16,little,true,0.001,0,-32,32,0,m,
rx,0x300,VEHICLE_TELEMETRY,20,6,speed_kph,16,16,little,false,0.01,0,0,600,0,km/h,
rx,0x300,VEHICLE_TELEMETRY,20,6,heading_deg,32,16,little,true,0.01,0,-180,180,0,deg,
tx,0x200,STEER_CMD,20,5,steering_cmd,0,16,little,true,0.0001,0,-1,1,0,,
tx,0x200,STEER_CMD,20,5,throttle_cmd,16,16,little,true,0.0001,0,-0.1,0.9,0,,
tx,0x200,STEER_CMD,20,5,restart_req,32,1,little,false,1,0,0,1,0,,
`

func mustParseMap(t *testing.T) *CANMap {
	t.Helper()
	m, err := ParseCANMap(strings.NewReader(testCANMap))
	require.NoError(t, err)
	return m
}

func TestParseCANMap(t *testing.T) {
	m := mustParseMap(t)
	assert.Equal(t, []string{"STEER_CMD", "VEHICLE_TELEMETRY"}, m.FrameNames())

	fd, err := m.FrameByID(0x300)
	require.NoError(t, err)
	assert.Equal(t, "VEHICLE_TELEMETRY", fd.Name)
	assert.Equal(t, DirectionRX, fd.Direction)
	require.Len(t, fd.Signals, 3)
	assert.Equal(t, "cte_m", fd.Signals[0].Name)
	assert.NoError(t, fd.Require(DirectionRX, "cte_m", "speed_kph"))
	assert.Error(t, fd.Require(DirectionTX))
	assert.Error(t, fd.Require(DirectionRX, "yaw_rate"))

	_, err = m.FrameByName("NOPE")
	assert.ErrorContains(t, err, "STEER_CMD")
}

func TestParseCANMap_Rejects(t *testing.T) {
	header := strings.SplitN(testCANMap, "\n", 2)[0] + "\n"
	tests := map[string]string{
		"missing column": "direction,frame_id\nrx,1\n",
		"bad id":         header + "rx,zz,F,10,8,s,0,8,little,false,1,0,0,1,0,,\n",
		"bad dlc":        header + "rx,1,F,10,9,s,0,8,little,false,1,0,0,1,0,,\n",
		"big endian":     header + "rx,1,F,10,8,s,0,8,big,false,1,0,0,1,0,,\n",
		"overflow":       header + "rx,1,F,10,1,s,4,8,little,false,1,0,0,1,0,,\n",
		"bad direction":  header + "both,1,F,10,8,s,0,8,little,false,1,0,0,1,0,,\n",
		"zero factor":    header + "rx,1,F,10,8,s,0,8,little,false,0,0,0,1,0,,\n",
		"bad number":     header + "rx,1,F,10,8,s,0,8,little,false,x,0,0,1,0,,\n",
		"dlc mismatch": header +
			"rx,1,F,10,8,a,0,8,little,false,1,0,0,1,0,,\n" +
			"rx,1,F,10,4,b,8,8,little,false,1,0,0,1,0,,\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCANMap(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestLoadCANMap_ShippedFile(t *testing.T) {
	m, err := LoadCANMap(filepath.Join("..", "config", "can", "can_map.csv"))
	require.NoError(t, err)
	_, err = m.FrameByName("STEER_CMD")
	assert.NoError(t, err)

	_, err = LoadCANMap(filepath.Join(t.TempDir(), "missing.csv"))
	assert.True(t, os.IsNotExist(err))
}

func TestEncodeDecodeFrame(t *testing.T) {
	m := mustParseMap(t)

	tx, err := m.EncodeFrame("STEER_CMD", map[string]float64{
		"steering_cmd": -0.5,
		"throttle_cmd": 0.3,
		"restart_req":  1,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x200), tx.ID)
	assert.Equal(t, uint8(5), tx.Length)
	// -5000 little endian is 0x78 0xEC; 3000 is 0xB8 0x0B.
	assert.Equal(t, []byte{0x78, 0xEC, 0xB8, 0x0B, 0x01}, tx.Data[:tx.Length])

	got, err := m.DecodeFrame(tx)
	require.NoError(t, err)
	assert.InDelta(t, -0.5, got["steering_cmd"], 1e-9)
	assert.InDelta(t, 0.3, got["throttle_cmd"], 1e-9)
	assert.Equal(t, 1.0, got["restart_req"])
}

func TestEncodeFrame_ClampsAndDefaults(t *testing.T) {
	m := mustParseMap(t)

	f, err := m.EncodeFrame("STEER_CMD", map[string]float64{"steering_cmd": 7})
	require.NoError(t, err)
	got, err := m.DecodeFrame(f)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got["steering_cmd"], 1e-9)
	assert.Zero(t, got["throttle_cmd"])
	assert.Zero(t, got["restart_req"])
}

func TestDecodeFrame_Errors(t *testing.T) {
	m := mustParseMap(t)

	_, err := m.DecodeFrame(can.Frame{ID: 0x123, Length: 8})
	assert.Error(t, err)

	_, err = m.DecodeFrame(can.Frame{ID: 0x300, Length: 2})
	assert.ErrorContains(t, err, "expects DLC 6")
}
