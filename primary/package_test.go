package primary

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-elite/value"
)

func TestCartesianInfo_Parse(t *testing.T) {
	require := require.New(t)

	pose := value.Vector6d{0.4, -0.1, 0.3, 3.14, 0, 1.57}
	offset := value.Vector6d{0, 0, 0.12, 0, 0, 0}
	sub := AppendSubPackage(nil, SubPackageCartesianInfo, AppendVector6d(AppendVector6d(nil, pose), offset))

	var info CartesianInfo
	require.NoError(info.Parse(sub))
	require.Equal(pose, info.TCPPose)
	require.Equal(offset, info.TCPOffset)
}

func TestPackage_ParseErrors(t *testing.T) {
	tests := []struct {
		description string
		pkg         Package
		sub         []byte
	}{
		{description: "short header", pkg: &KinematicsInfo{}, sub: []byte{0, 0}},
		{description: "wrong type", pkg: &KinematicsInfo{}, sub: AppendSubPackage(nil, SubPackageCartesianInfo, make([]byte, 144))},
		{description: "short body", pkg: &CartesianInfo{}, sub: AppendSubPackage(nil, SubPackageCartesianInfo, make([]byte, 95))},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			require.ErrorIs(t, tt.pkg.Parse(tt.sub), ErrMalformedFrame)
		})
	}
}

func TestSplitSubPackages(t *testing.T) {
	require := require.New(t)

	body := AppendSubPackage(nil, 1, []byte{9})
	body = AppendSubPackage(body, 2, nil)

	var types []uint8
	require.NoError(splitSubPackages(body, func(typ uint8, sub []byte) {
		types = append(types, typ)
		require.Equal(int(binary.BigEndian.Uint32(sub)), len(sub))
	}))
	require.Equal([]uint8{1, 2}, types)

	require.ErrorIs(splitSubPackages([]byte{0, 0, 0, 99, 1}, func(uint8, []byte) {}), ErrMalformedFrame)
	require.ErrorIs(splitSubPackages([]byte{0, 0}, func(uint8, []byte) {}), ErrMalformedFrame)
}

func TestParseRobotMessage(t *testing.T) {
	require := require.New(t)

	body := binary.BigEndian.AppendUint64(nil, 42)
	body = append(body, byte(SourceSafety), robotMessageErrorCode)
	body = binary.BigEndian.AppendUint32(body, 7)
	body = binary.BigEndian.AppendUint32(body, 0)
	body = binary.BigEndian.AppendUint32(body, uint32(LevelFatal))
	body = binary.BigEndian.AppendUint32(body, uint32(DataString))
	body = append(body, "joint overcurrent"...)

	ex, err := parseRobotMessage(body)
	require.NoError(err)
	robotErr, ok := ex.(*RobotError)
	require.True(ok)
	require.Equal("joint overcurrent", robotErr.Data)
	require.Equal("SAFETY", robotErr.Source.String())
	require.Equal("FATAL", robotErr.Level.String())

	_, err = parseRobotMessage([]byte{1, 2, 3})
	require.ErrorIs(err, ErrMalformedFrame)

	ex, err = parseRobotMessage(append(binary.BigEndian.AppendUint64(nil, 1), 0, 3))
	require.NoError(err)
	require.Nil(ex)
}
