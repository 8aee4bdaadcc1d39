package posemux

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/trackpose/internal/pose"
)

// Frame is one sampling pass: the records for every requested device, in
// request order.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Indices   []uint32
	Records   []pose.PoseRecord
}

// Flat returns the records as the flat x,y,z,qx,qy,qz,qw sequence.
func (f Frame) Flat() []float32 {
	return pose.Flatten(f.Records)
}

// EncodeCSV renders f as a single line without trailing newline:
// seq,unix_nanos,device_count followed by seven values per record.
// Non-finite values are written as NaN/+Inf/-Inf.
func EncodeCSV(f Frame) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(f.Seq, 10))
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(f.Timestamp.UnixNano(), 10))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(len(f.Records)))
	for _, r := range f.Records {
		for _, v := range r {
			b.WriteByte(',')
			b.WriteString(formatFloat(v))
		}
	}
	return b.String()
}

func formatFloat(v float32) string {
	switch f := float64(v); {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	default:
		return strconv.FormatFloat(f, 'g', -1, 32)
	}
}
