package inlet

import (
	"encoding/binary"
	"math"

	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/gazeio/ettbuffer/recordtypes"
)

func getF32(buf []byte, off int) float64 {
	return float64(math.Float32frombits(binary.BigEndian.Uint32(buf[off:])))
}

func getI64(buf []byte, off int) int64 {
	return int64(binary.BigEndian.Uint64(buf[off:]))
}

func validityFromFlag(f float64) recordtypes.Validity {
	if f == 1.0 {
		return recordtypes.Valid
	}
	return recordtypes.Invalid
}

// decodeEye is the inverse of outlet.encodeEye: it reads one eye's 21-channel layout starting at
// byte offset off and returns the offset past the last channel read.
func decodeEye(buf []byte, off int) (recordtypes.EyeData, int) {
	var eye recordtypes.EyeData

	eye.GazePoint.DisplayArea = recordtypes.Vector2{X: getF32(buf, off+0*4), Y: getF32(buf, off+1*4)}
	eye.GazePoint.UserCoords = recordtypes.Vector3{X: getF32(buf, off+2*4), Y: getF32(buf, off+3*4), Z: getF32(buf, off+4*4)}
	eye.GazePoint.Validity = validityFromFlag(getF32(buf, off+5*4))
	eye.GazePoint.Available = getF32(buf, off+6*4) == 1.0

	eye.Pupil.Diameter = getF32(buf, off+7*4)
	eye.Pupil.Validity = validityFromFlag(getF32(buf, off+8*4))
	eye.Pupil.Available = getF32(buf, off+9*4) == 1.0

	eye.GazeOrigin.UserCoords = recordtypes.Vector3{X: getF32(buf, off+10*4), Y: getF32(buf, off+11*4), Z: getF32(buf, off+12*4)}
	eye.GazeOrigin.TrackBoxCoords = recordtypes.Vector3{X: getF32(buf, off+13*4), Y: getF32(buf, off+14*4), Z: getF32(buf, off+15*4)}
	eye.GazeOrigin.Validity = validityFromFlag(getF32(buf, off+16*4))
	eye.GazeOrigin.Available = getF32(buf, off+17*4) == 1.0

	eye.Openness.Diameter = getF32(buf, off+18*4)
	eye.Openness.Validity = validityFromFlag(getF32(buf, off+19*4))
	eye.Openness.Available = getF32(buf, off+20*4) == 1.0

	return eye, off + 21*4
}

// DecodeGaze is the inverse of outlet.EncodeGaze. The record's SystemTS is not carried in the
// channel payload; the caller fills it in from the sample's own wire timestamp.
func DecodeGaze(payload []byte) (recordtypes.GazeRecord, error) {
	if len(payload) != 42*4 {
		return recordtypes.GazeRecord{}, errors.Errorf("inlet: gaze payload has %d bytes, want %d", len(payload), 42*4)
	}
	var rec recordtypes.GazeRecord
	var off int
	rec.Left, off = decodeEye(payload, 0)
	rec.Right, _ = decodeEye(payload, off)
	return rec, nil
}

// DecodeExtSignal is the inverse of outlet.EncodeExtSignal.
func DecodeExtSignal(payload []byte) (recordtypes.ExtSignal, error) {
	if len(payload) != 2*8 {
		return recordtypes.ExtSignal{}, errors.Errorf("inlet: ext-signal payload has %d bytes, want %d", len(payload), 2*8)
	}
	return recordtypes.ExtSignal{DeviceTS: getI64(payload, 0), Value: getI64(payload, 8)}, nil
}

// DecodeTimeSync is the inverse of outlet.EncodeTimeSync.
func DecodeTimeSync(payload []byte) (recordtypes.TimeSync, error) {
	if len(payload) != 3*8 {
		return recordtypes.TimeSync{}, errors.Errorf("inlet: time-sync payload has %d bytes, want %d", len(payload), 3*8)
	}
	return recordtypes.TimeSync{
		SystemRequestTS:  getI64(payload, 0),
		DeviceTS:         getI64(payload, 8),
		SystemResponseTS: getI64(payload, 16),
	}, nil
}

// DecodePositioning is the inverse of outlet.EncodePositioning.
func DecodePositioning(payload []byte) (recordtypes.Positioning, error) {
	if len(payload) != 8*4 {
		return recordtypes.Positioning{}, errors.Errorf("inlet: positioning payload has %d bytes, want %d", len(payload), 8*4)
	}
	decodeEyeSlot := func(base int) recordtypes.PositioningEye {
		return recordtypes.PositioningEye{
			X:         float32(getF32(payload, base+0*4)),
			Y:         float32(getF32(payload, base+1*4)),
			Z:         float32(getF32(payload, base+2*4)),
			ValidFlag: getF32(payload, base+3*4) == 1.0,
		}
	}
	return recordtypes.Positioning{LeftEye: decodeEyeSlot(0), RightEye: decodeEyeSlot(16)}, nil
}

// DecodeEyeImage rebuilds an EyeImage's payload bytes, reversing snappy compression when
// compressed is set (the outlet published the VideoCompressed channel).
func DecodeEyeImage(payload []byte, compressed bool) (recordtypes.EyeImage, error) {
	if !compressed {
		return recordtypes.EyeImage{Payload: append([]byte(nil), payload...)}, nil
	}
	raw, err := snappy.Decode(nil, payload)
	if err != nil {
		return recordtypes.EyeImage{}, errors.Wrap(err, "inlet: decompress eye image payload")
	}
	return recordtypes.EyeImage{Payload: raw}, nil
}
