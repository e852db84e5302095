package mlmodel

import "FlowPilot/internal/model"

// FeatureNames lists the fixed feature vector layout, in order. The trained
// model must have been fit against this exact layout.
var FeatureNames = []string{
	"packet_length",
	"ip_proto",
	"ip_ttl",
	"src_port",
	"dst_port",
	"tcp_flags",
	"tcp_fin",
	"tcp_syn",
	"tcp_rst",
	"tcp_psh",
	"tcp_ack",
	"tcp_urg",
	"flow_duration",
	"flow_packet_count",
	"flow_byte_count",
	"avg_inter_arrival",
	"std_inter_arrival",
	"avg_packet_size",
	"std_packet_size",
	"packet_rate",
	"byte_rate",
}

// NumFeatures is the fixed feature vector size.
var NumFeatures = len(FeatureNames)

// BuildFeatures computes the numeric feature vector for a descriptor. Only
// flow-level statistics are used; the payload is never touched. Missing
// values (non-IP traffic, untracked flows) are zero-filled so the vector
// size never varies.
func BuildFeatures(fd *model.FlowDescriptor) []float64 {
	f := make([]float64, NumFeatures)
	f[0] = float64(fd.Length)
	f[1] = float64(fd.FiveTuple.Protocol)
	f[2] = float64(fd.TTL)
	f[3] = float64(fd.FiveTuple.SrcPort)
	f[4] = float64(fd.FiveTuple.DstPort)
	f[5] = float64(fd.TCPFlags)
	f[6] = flagBit(fd.TCPFlags, 0x01)
	f[7] = flagBit(fd.TCPFlags, 0x02)
	f[8] = flagBit(fd.TCPFlags, 0x04)
	f[9] = flagBit(fd.TCPFlags, 0x08)
	f[10] = flagBit(fd.TCPFlags, 0x10)
	f[11] = flagBit(fd.TCPFlags, 0x20)

	if st := fd.Stats; st != nil {
		f[12] = st.Duration.Seconds()
		f[13] = float64(st.PacketCount)
		f[14] = float64(st.ByteCount)
		f[15] = st.AvgInterArrival
		f[16] = st.StdInterArrival
		f[17] = st.AvgPacketSize
		f[18] = st.StdPacketSize
		f[19] = st.PacketRate
		f[20] = st.ByteRate
	}
	return f
}

func flagBit(flags uint8, mask uint8) float64 {
	if flags&mask != 0 {
		return 1
	}
	return 0
}
