package datasource

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const testCameraPort = 2468

// writeTestCapture builds a small pcap with one camera frame datagram, one
// IMU line datagram, and one garbage datagram.
func writeTestCapture(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "run.pcap")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatal(err)
	}

	base := time.Unix(1700000000, 0)
	payloads := []struct {
		dstPort int
		body    string
	}{
		{testCameraPort, `{"ts_unix_nanos": 1700000000000000000, "camera_index": 0, "width": 8, "height": 8, "data": "AAEC"}`},
		{5555, "1700000000001000000,0.1,0.2,9.8,0,0,0"},
		{5555, "garbage that is not an imu line"},
	}
	for i, p := range payloads {
		data := serializeUDP(t, p.dstPort, []byte(p.body))
		ci := gopacket.CaptureInfo{
			Timestamp:     base.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := w.WritePacket(ci, data); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func serializeUDP(t *testing.T, dstPort int, payload []byte) []byte {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	udp := &layers.UDP{
		SrcPort: 40000,
		DstPort: layers.UDPPort(dstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatal(err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestReplaySource(t *testing.T) {
	src := &ReplaySource{
		Path:            writeTestCapture(t),
		CameraPort:      testCameraPort,
		SpeedMultiplier: 100, // keep the test quick
	}
	sink := newCollectSink()

	if err := src.Run(context.Background(), sink); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := sink.count(TopicCameraFrames); got != 1 {
		t.Errorf("camera frames = %d, want 1", got)
	}
	if got := sink.count(TopicImuSamples); got != 1 {
		t.Errorf("imu samples = %d, want 1 (garbage skipped)", got)
	}
}

func TestReplaySource_MissingFile(t *testing.T) {
	src := &ReplaySource{Path: filepath.Join(t.TempDir(), "nope.pcap")}
	if err := src.Run(context.Background(), newCollectSink()); err == nil {
		t.Error("expected error for missing capture file")
	}
}

func TestReplaySource_Cancelled(t *testing.T) {
	src := &ReplaySource{Path: writeTestCapture(t), CameraPort: testCameraPort}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := src.Run(ctx, newCollectSink()); err != nil {
		t.Fatalf("Run after cancel = %v, want nil", err)
	}
}
