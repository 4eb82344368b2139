package passthru

import (
	"bytes"
	"fmt"
	"unsafe"

	"github.com/bendikro/dl"
)

// PassThru binds the entry points of a J2534 shared library loaded with
// dlopen.
type PassThru struct {
	lib                     *dl.DL
	passThruReadVersionProc func(uint32, uintptr, uintptr, uintptr) uint32
	passThruOpen            func(string, *uint32) uint32
	passThruClose           func(uint32) uint32
	passThruConnect         func(uint32, uint32, uint32, uint32, *uint32) uint32
	passThruDisconnect      func(uint32) uint32
	passThruReadMsgs        func(uint32, *PassThruMsg, *uint32, uint32) uint32
	passThruWriteMsgs       func(uint32, *PassThruMsg, *uint32, uint32) uint32
	passThruStartMsgFilter  func(uint32, uint32, *PassThruMsg, *PassThruMsg, *PassThruMsg, *uint32) uint32
	passThruIoctl           func(uint32, uint32, uintptr, uintptr) uint32
	passThruGetLastError    func(uintptr) uint32
}

func New(libName string) (*PassThru, error) {
	lib, err := dl.Open(libName, 0)
	if err != nil {
		return nil, err
	}
	pt := &PassThru{lib: lib}
	for _, sym := range []struct {
		name string
		fn   interface{}
	}{
		{"PassThruReadVersion", &pt.passThruReadVersionProc},
		{"PassThruOpen", &pt.passThruOpen},
		{"PassThruClose", &pt.passThruClose},
		{"PassThruConnect", &pt.passThruConnect},
		{"PassThruDisconnect", &pt.passThruDisconnect},
		{"PassThruReadMsgs", &pt.passThruReadMsgs},
		{"PassThruWriteMsgs", &pt.passThruWriteMsgs},
		{"PassThruStartMsgFilter", &pt.passThruStartMsgFilter},
		{"PassThruIoctl", &pt.passThruIoctl},
		{"PassThruGetLastError", &pt.passThruGetLastError},
	} {
		if err := lib.Sym(sym.name, sym.fn); err != nil {
			lib.Close()
			return nil, fmt.Errorf("%s: %w", libName, err)
		}
	}
	return pt, nil
}

// Close releases the shared library.
func (j *PassThru) Close() error {
	return j.lib.Close()
}

// PassThruOpen long PassThruOpen(void* pName, unsigned long *pDeviceID);
func (j *PassThru) PassThruOpen(deviceName string, pDeviceID *uint32) error {
	return CheckError(j.passThruOpen(deviceName, pDeviceID))
}

// PassThruClose long PassThruClose(unsigned long DeviceID);
func (j *PassThru) PassThruClose(deviceID uint32) error {
	return CheckError(j.passThruClose(deviceID))
}

// PassThruConnect long PassThruConnect(unsigned long DeviceID, unsigned long ProtocolID, unsigned long Flags, unsigned long BaudRate, unsigned long *pChannelID);
func (j *PassThru) PassThruConnect(deviceID uint32, protocolID uint32, flags uint32, baudRate uint32, pChannelID *uint32) error {
	return CheckError(j.passThruConnect(deviceID, protocolID, flags, baudRate, pChannelID))
}

// PassThruDisconnect long PassThruDisconnect(unsigned long ChannelID);
func (j *PassThru) PassThruDisconnect(channelID uint32) error {
	return CheckError(j.passThruDisconnect(channelID))
}

// PassThruReadMsg reads a single message, returning how many were read.
func (j *PassThru) PassThruReadMsg(channelID uint32, pMsg *PassThruMsg, timeout uint32) (uint32, error) {
	pNumMsgs := uint32(1)
	ret := j.passThruReadMsgs(channelID, pMsg, &pNumMsgs, timeout)
	if err := CheckError(ret); err != nil {
		if str, err2 := j.PassThruGetLastError(); err2 == nil && str != "" {
			return 0, fmt.Errorf("%s: %w", str, err)
		}
		return 0, err
	}
	return pNumMsgs, nil
}

// PassThruReadMsgs long PassThruReadMsgs(unsigned long ChannelID, PassThruMsg *pMsg, unsigned long *pNumMsgs, unsigned long Timeout);
func (j *PassThru) PassThruReadMsgs(channelID uint32, pMsg *PassThruMsg, pNumMsgs *uint32, timeout uint32) error {
	ret := j.passThruReadMsgs(channelID, pMsg, pNumMsgs, timeout)
	if err := CheckError(ret); err != nil {
		if str, err2 := j.PassThruGetLastError(); err2 == nil && str != "" {
			return fmt.Errorf("%s: %w", str, err)
		}
		return err
	}
	return nil
}

// PassThruWriteMsgs long PassThruWriteMsgs(unsigned long ChannelID, PassThruMsg *pMsg, unsigned long *pNumMsgs, unsigned long Timeout);
func (j *PassThru) PassThruWriteMsgs(channelID uint32, pMsg *PassThruMsg, pNumMsgs *uint32, timeout uint32) error {
	return CheckError(j.passThruWriteMsgs(channelID, pMsg, pNumMsgs, timeout))
}

// PassThruStartMsgFilter long PassThruStartMsgFilter(unsigned long ChannelID, unsigned long FilterType, PassThruMsg *pMaskMsg, PassThruMsg *pPatternMsg, PassThruMsg *pFlowControlMsg, unsigned long *pMsgID);
func (j *PassThru) PassThruStartMsgFilter(channelID uint32, filterType uint32, pMaskMsg, pPatternMsg, pFlowControlMsg *PassThruMsg, pMsgID *uint32) error {
	return CheckError(j.passThruStartMsgFilter(channelID, filterType, pMaskMsg, pPatternMsg, pFlowControlMsg, pMsgID))
}

// PassThruReadVersion long PassThruReadVersion(unsigned long DeviceID, char *pFirmwareVersion, char *pDllVersion, char *pApiVersion);
func (j *PassThru) PassThruReadVersion(deviceID uint32) (string, string, string, error) {
	var pFirmwareVersion [80]byte
	var pDllVersion [80]byte
	var pApiVersion [80]byte
	ret := j.passThruReadVersionProc(
		deviceID,
		uintptr(unsafe.Pointer(&pFirmwareVersion)),
		uintptr(unsafe.Pointer(&pDllVersion)),
		uintptr(unsafe.Pointer(&pApiVersion)),
	)
	if err := CheckError(ret); err != nil {
		return "", "", "", err
	}
	return string(bytes.Trim(pFirmwareVersion[:], "\x00")),
		string(bytes.Trim(pDllVersion[:], "\x00")),
		string(bytes.Trim(pApiVersion[:], "\x00")), nil
}

// PassThruIoctl long PassThruIoctl(unsigned long HandleID, unsigned long IoctlID, void *pInput, void *pOutput);
func (j *PassThru) PassThruIoctl(handleID uint32, ioctlID uint32, opts ...interface{}) error {
	switch ioctlID {
	case SET_CONFIG, GET_CONFIG:
		return CheckError(j.passThruIoctl(handleID, ioctlID,
			uintptr(unsafe.Pointer(opts[0].(*SCONFIG_LIST))), 0))
	case CLEAR_MSG_FILTERS, CLEAR_RX_BUFFER, CLEAR_TX_BUFFER, CLEAR_PERIODIC_MSGS:
		return CheckError(j.passThruIoctl(handleID, ioctlID, 0, 0))
	case FAST_INIT:
		return CheckError(j.passThruIoctl(handleID, ioctlID,
			uintptr(unsafe.Pointer(opts[0].(*PassThruMsg))),
			uintptr(unsafe.Pointer(opts[1].(*PassThruMsg)))))
	}
	return ErrNotSupported
}

// PassThruGetLastError long PassThruGetLastError(char *pErrorDescription);
func (j *PassThru) PassThruGetLastError() (string, error) {
	var pErrorDescription [80]byte
	ret := j.passThruGetLastError(uintptr(unsafe.Pointer(&pErrorDescription)))
	return string(bytes.Trim(pErrorDescription[:], "\x00")), CheckError(ret)
}
