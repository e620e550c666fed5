// Package outlet implements the Outlet Manager (specification §4.3): one outlet per
// (session, stream kind), each publishing the fixed channel layout from §6 over a transport.Bus.
package outlet

import (
	"encoding/binary"
	"math"

	"github.com/golang/snappy"

	"github.com/gazeio/ettbuffer/recordtypes"
)

func putF32(buf []byte, off int, v float64) {
	binary.BigEndian.PutUint32(buf[off:], math.Float32bits(float32(v)))
}

func putI64(buf []byte, off int, v int64) {
	binary.BigEndian.PutUint64(buf[off:], uint64(v))
}

func flag(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

func validFlag(v recordtypes.Validity) float64 { return flag(v == recordtypes.Valid) }

// encodeEye writes one eye's normative 21-channel layout (§6) starting at byte offset off,
// advancing 4 bytes per f32 channel, and returns the offset past the last channel written.
func encodeEye(buf []byte, off int, eye recordtypes.EyeData) int {
	gp := eye.GazePoint
	putF32(buf, off+0*4, gp.DisplayArea.X)
	putF32(buf, off+1*4, gp.DisplayArea.Y)
	putF32(buf, off+2*4, gp.UserCoords.X)
	putF32(buf, off+3*4, gp.UserCoords.Y)
	putF32(buf, off+4*4, gp.UserCoords.Z)
	putF32(buf, off+5*4, validFlag(gp.Validity))
	putF32(buf, off+6*4, flag(gp.Available))

	p := eye.Pupil
	putF32(buf, off+7*4, p.Diameter)
	putF32(buf, off+8*4, validFlag(p.Validity))
	putF32(buf, off+9*4, flag(p.Available))

	go_ := eye.GazeOrigin
	putF32(buf, off+10*4, go_.UserCoords.X)
	putF32(buf, off+11*4, go_.UserCoords.Y)
	putF32(buf, off+12*4, go_.UserCoords.Z)
	putF32(buf, off+13*4, go_.TrackBoxCoords.X)
	putF32(buf, off+14*4, go_.TrackBoxCoords.Y)
	putF32(buf, off+15*4, go_.TrackBoxCoords.Z)
	putF32(buf, off+16*4, validFlag(go_.Validity))
	putF32(buf, off+17*4, flag(go_.Available))

	o := eye.Openness
	putF32(buf, off+18*4, o.Diameter)
	putF32(buf, off+19*4, validFlag(o.Validity))
	putF32(buf, off+20*4, flag(o.Available))

	return off + 21*4
}

// EncodeGaze serializes a GazeRecord into the 42-channel f32 wire layout: left eye then right eye.
func EncodeGaze(r recordtypes.GazeRecord) []byte {
	buf := make([]byte, 42*4)
	off := encodeEye(buf, 0, r.Left)
	encodeEye(buf, off, r.Right)
	return buf
}

// EncodeExtSignal serializes {device_ts, value} as 2 i64 channels.
func EncodeExtSignal(s recordtypes.ExtSignal) []byte {
	buf := make([]byte, 2*8)
	putI64(buf, 0, s.DeviceTS)
	putI64(buf, 8, s.Value)
	return buf
}

// EncodeTimeSync serializes {system_request_ts, device_ts, system_response_ts} as 3 i64 channels.
func EncodeTimeSync(s recordtypes.TimeSync) []byte {
	buf := make([]byte, 3*8)
	putI64(buf, 0, s.SystemRequestTS)
	putI64(buf, 8, s.DeviceTS)
	putI64(buf, 16, s.SystemResponseTS)
	return buf
}

// EncodePositioning serializes per eye {x, y, z, valid_flag} as 8 f32 channels, left then right.
func EncodePositioning(p recordtypes.Positioning) []byte {
	buf := make([]byte, 8*4)
	eyes := [2]recordtypes.PositioningEye{p.LeftEye, p.RightEye}
	for i, eye := range eyes {
		base := i * 4 * 4
		putF32(buf, base+0*4, float64(eye.X))
		putF32(buf, base+1*4, float64(eye.Y))
		putF32(buf, base+2*4, float64(eye.Z))
		putF32(buf, base+3*4, flag(eye.ValidFlag))
	}
	return buf
}

// EncodeEyeImageRaw serializes an EyeImage's raw payload unchanged, for the VideoRaw channel.
func EncodeEyeImageRaw(img recordtypes.EyeImage) []byte {
	return append([]byte(nil), img.Payload...)
}

// EncodeEyeImageCompressed snappy-compresses an EyeImage's payload, for the VideoCompressed
// channel (§1: EyeImage frames are large enough that a compressed outlet variant is worth
// offering alongside the raw one).
func EncodeEyeImageCompressed(img recordtypes.EyeImage) []byte {
	return snappy.Encode(nil, img.Payload)
}
