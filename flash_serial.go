package wvrboot

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// SerialProgrammer implements FlashProgrammer by driving the OTA service of a
// device attached to a serial port. Each call is one JSON request line,
// answered by one JSON response line:
//
//	{"method":"OTA.Begin","args":{"size":123}}   -> {"result":true}
//	{"method":"OTA.Write","args":{"data":"..."}} -> {"result":512}
//	{"method":"OTA.Abort"}                       -> {"result":true}
//	{"method":"OTA.End"}                         -> {"result":true}
//	{"method":"OTA.Status"}                      -> {"result":{"finished":true}}
//
// Write data is base64 encoded. A failed exchange is reported the way the
// FlashProgrammer interface reports failures: false or zero bytes written.
type SerialProgrammer struct {
	portConfig serial.Config
	port       io.ReadWriteCloser
	r          *bufio.Reader
}

// NewSerialProgrammer creates a programmer using the serial transport. The port
// is opened by Connect.
func NewSerialProgrammer(port string, baud int) *SerialProgrammer {
	p := new(SerialProgrammer)

	p.portConfig.Baud = baud
	p.portConfig.Name = port
	p.portConfig.ReadTimeout = 5 * time.Second

	return p
}

func newStreamProgrammer(rw io.ReadWriteCloser) *SerialProgrammer {
	return &SerialProgrammer{port: rw, r: bufio.NewReader(rw)}
}

// Connect opens the serial port.
func (p *SerialProgrammer) Connect() error {
	port, err := serial.OpenPort(&p.portConfig)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", p.portConfig.Name)
	}
	// Let the USB serial driver deliver anything already in flight before
	// flushing it.
	time.Sleep(time.Millisecond * 100)
	port.Flush()
	p.port = port
	p.r = bufio.NewReader(port)
	return nil
}

// Close closes the serial port.
func (p *SerialProgrammer) Close() error {
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	return err
}

type otaRequest struct {
	Method string      `json:"method"`
	Args   interface{} `json:"args,omitempty"`
}

type otaResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func (p *SerialProgrammer) call(method string, args interface{}, result interface{}) error {
	if p.port == nil {
		return errors.New("not connected")
	}
	req, err := json.Marshal(otaRequest{Method: method, Args: args})
	if err != nil {
		return err
	}
	if _, err := p.port.Write(append(req, '\n')); err != nil {
		return errors.Wrapf(err, "%s: write failed", method)
	}

	line, err := p.r.ReadBytes('\n')
	if err != nil {
		return errors.Wrapf(err, "%s: no response", method)
	}
	var resp otaResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return errors.Wrapf(err, "%s: invalid response %q", method, line)
	}
	if resp.Error != "" {
		return fmt.Errorf("%s: device returned error: %s", method, resp.Error)
	}
	if result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return errors.Wrapf(err, "%s: invalid result", method)
		}
	}
	return nil
}

func (p *SerialProgrammer) callBool(method string, args interface{}) bool {
	var ok bool
	if err := p.call(method, args, &ok); err != nil {
		pkgLog.Errorf("%v", err)
		return false
	}
	return ok
}

// Begin starts an OTA session on the device.
func (p *SerialProgrammer) Begin(size int) bool {
	return p.callBool("OTA.Begin", struct {
		Size int `json:"size"`
	}{size})
}

// Write sends one chunk to the device.
func (p *SerialProgrammer) Write(b []byte) int {
	var n int
	err := p.call("OTA.Write", struct {
		Data string `json:"data"`
	}{base64.StdEncoding.EncodeToString(b)}, &n)
	if err != nil {
		pkgLog.Errorf("%v", err)
		return 0
	}
	return n
}

// Abort cancels the OTA session.
func (p *SerialProgrammer) Abort() {
	p.callBool("OTA.Abort", nil)
}

// End finalizes the OTA session.
func (p *SerialProgrammer) End() bool {
	return p.callBool("OTA.End", nil)
}

// IsFinished asks the device whether the whole image was received.
func (p *SerialProgrammer) IsFinished() bool {
	var st struct {
		Finished bool `json:"finished"`
	}
	if err := p.call("OTA.Status", nil, &st); err != nil {
		pkgLog.Errorf("%v", err)
		return false
	}
	return st.Finished
}
