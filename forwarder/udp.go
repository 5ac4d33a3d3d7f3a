package forwarder

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// maxPacketSize bounds a MISB 0601 packet from this encoder: key, worst-case
// BER length and the full tag set leave plenty of headroom at 256.
const maxPacketSize = 256

type UDPConfig struct {
	Server string
	Port   int

	// WriteBuffer overrides the OS send buffer size; 0 keeps the default
	// sized for a couple of packets.
	WriteBuffer int
}

// UDPForwarder sends encoded telemetry packets to a remote UDP endpoint. It
// implements the scheduler's Sink: Send reports failures to the caller and
// never blocks beyond the kernel send path.
type UDPForwarder struct {
	Config *UDPConfig

	conn net.Conn
}

// NewUDPForwarder loads a TOML config from a file next to the binary.
func NewUDPForwarder(fileName string) (*UDPForwarder, error) {
	dir, err := filepath.Abs(filepath.Dir(os.Args[0]))
	if err != nil {
		return nil, errors.Wrap(err, "unable to determine binary location")
	}
	file, err := os.Open(filepath.Join(dir, fileName))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open file %s", fileName)
	}
	defer file.Close()
	return NewUDPForwarderFromReader(file)
}

func NewUDPForwarderFromReader(configReader io.Reader) (*UDPForwarder, error) {
	configData, err := io.ReadAll(configReader)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read config reader")
	}
	config := UDPConfig{}
	if _, err := toml.Decode(string(configData), &config); err != nil {
		return nil, errors.Wrap(err, "unable to load udp forwarder configuration")
	}
	udp := &UDPForwarder{Config: &config}
	if err = udp.connect(); err != nil {
		return nil, err
	}
	return udp, nil
}

func (udp *UDPForwarder) Close() error {
	return udp.conn.Close()
}

// Send transmits one packet. A failure is returned for the caller to count;
// the connection stays usable for the next cycle.
func (udp *UDPForwarder) Send(pkt []byte) error {
	if _, err := udp.conn.Write(pkt); err != nil {
		return errors.Wrap(err, "unable to send telemetry packet")
	}
	return nil
}

func (udp *UDPForwarder) connect() error {
	writeBufSize := udp.Config.WriteBuffer
	if writeBufSize == 0 {
		writeBufSize = maxPacketSize * 2
	}

	conn, err := net.Dial("udp", fmt.Sprintf("%s:%d",
		udp.Config.Server,
		udp.Config.Port))
	if err != nil {
		return err
	}
	udpConn := conn.(*net.UDPConn)
	if err = udpConn.SetWriteBuffer(writeBufSize); err != nil {
		return errors.Wrapf(err, "unable to set OS write buffer to %v", writeBufSize)
	}

	udp.conn = conn
	return nil
}
