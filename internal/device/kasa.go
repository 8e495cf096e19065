package device

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"strings"
	"time"

	"appliancemon/internal/errors"
	"appliancemon/internal/logger"
)

const (
	// DefaultPort is the TP-Link local protocol port
	DefaultPort = "9999"

	cipherSeed        = 171
	milliWattsToWatts = 1000
	maxFrameSize      = 1 << 20
)

const (
	cmdRealtime = `{"emeter":{"get_realtime":{}}}`
	cmdSysInfo  = `{"system":{"get_sysinfo":{}}}`
)

// KasaClient speaks the TP-Link smart plug local protocol: length-prefixed
// JSON frames obfuscated with an XOR autokey cipher, one connection per
// request.
type KasaClient struct {
	dialer net.Dialer
}

// NewKasaClient returns a client whose dials time out after dialTimeout.
// Per-request deadlines come from the caller's context.
func NewKasaClient(dialTimeout time.Duration) *KasaClient {
	return &KasaClient{
		dialer: net.Dialer{Timeout: dialTimeout},
	}
}

type realtimeResponse struct {
	Emeter struct {
		GetRealtime struct {
			// Newer hardware reports milliwatts, older reports watts
			PowerMW *float64 `json:"power_mw"`
			Power   *float64 `json:"power"`
			ErrCode int      `json:"err_code"`
		} `json:"get_realtime"`
	} `json:"emeter"`
}

type sysInfoResponse struct {
	System struct {
		GetSysInfo struct {
			Alias   string `json:"alias"`
			Model   string `json:"model"`
			Feature string `json:"feature"`
			ErrCode int    `json:"err_code"`
		} `json:"get_sysinfo"`
	} `json:"system"`
}

// Power reads the current draw in watts from the outlet at addr.
func (c *KasaClient) Power(ctx context.Context, addr string) (float64, error) {
	errFactory := errors.New()

	raw, err := c.roundTrip(ctx, addr, cmdRealtime)
	if err != nil {
		return 0, err
	}

	var resp realtimeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, errFactory.Wrap(ErrBadResponse, err)
	}

	rt := resp.Emeter.GetRealtime
	if rt.ErrCode != 0 {
		return 0, errFactory.WithData(ErrDeviceErrCode, rt.ErrCode)
	}

	switch {
	case rt.PowerMW != nil:
		return *rt.PowerMW / milliWattsToWatts, nil
	case rt.Power != nil:
		return *rt.Power, nil
	default:
		return 0, errFactory.WithMessage(ErrBadResponse, "realtime response missing power field")
	}
}

// SysInfo queries device identity. Emeter support is advertised through the
// "ENE" feature flag.
func (c *KasaClient) SysInfo(ctx context.Context, addr string) (SysInfo, error) {
	errFactory := errors.New()

	raw, err := c.roundTrip(ctx, addr, cmdSysInfo)
	if err != nil {
		return SysInfo{}, err
	}

	var resp sysInfoResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return SysInfo{}, errFactory.Wrap(ErrBadResponse, err)
	}

	info := resp.System.GetSysInfo
	if info.ErrCode != 0 {
		return SysInfo{}, errFactory.WithData(ErrDeviceErrCode, info.ErrCode)
	}

	return SysInfo{
		Alias:     info.Alias,
		Model:     info.Model,
		HasEmeter: strings.Contains(info.Feature, "ENE"),
	}, nil
}

func (c *KasaClient) roundTrip(ctx context.Context, addr, cmd string) ([]byte, error) {
	errFactory := errors.New()

	conn, err := c.dialer.DialContext(ctx, "tcp", withDefaultPort(addr))
	if err != nil {
		return nil, errFactory.Wrap(ErrConnectFailed, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, errFactory.Wrap(ErrConnectFailed, err)
		}
	}

	if _, err := conn.Write(encodeFrame([]byte(cmd))); err != nil {
		return nil, errFactory.Wrap(ErrWriteFailed, err)
	}

	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return nil, errFactory.Wrap(ErrReadFailed, err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if size == 0 || size > maxFrameSize {
		return nil, errFactory.WithData(ErrBadResponse, size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, errFactory.Wrap(ErrReadFailed, err)
	}

	logger.Debug().Str("device", addr).Int("bytes", int(size)).Msg("Device response received")

	return decrypt(body), nil
}

// encodeFrame prepends the 4-byte big-endian length and obfuscates the
// payload.
func encodeFrame(plain []byte) []byte {
	frame := make([]byte, 4+len(plain))
	binary.BigEndian.PutUint32(frame, uint32(len(plain)))
	copy(frame[4:], encrypt(plain))

	return frame
}

// encrypt applies the TP-Link XOR autokey cipher: each ciphertext byte keys
// the next one.
func encrypt(plain []byte) []byte {
	out := make([]byte, len(plain))
	key := byte(cipherSeed)
	for i, b := range plain {
		out[i] = key ^ b
		key = out[i]
	}

	return out
}

func decrypt(cipher []byte) []byte {
	out := make([]byte, len(cipher))
	key := byte(cipherSeed)
	for i, b := range cipher {
		out[i] = key ^ b
		key = b
	}

	return out
}

func withDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return net.JoinHostPort(addr, DefaultPort)
	}

	return addr
}
