package passthru

import (
	"bytes"
	"fmt"
	"syscall"
	"unsafe"
)

// PassThru binds the entry points of a J2534 DLL.
type PassThru struct {
	dll                     *syscall.DLL
	passThruReadVersionProc *syscall.Proc
	passThruOpen            *syscall.Proc
	passThruClose           *syscall.Proc
	passThruConnect         *syscall.Proc
	passThruDisconnect      *syscall.Proc
	passThruReadMsgs        *syscall.Proc
	passThruWriteMsgs       *syscall.Proc
	passThruStartMsgFilter  *syscall.Proc
	passThruIoctl           *syscall.Proc
	passThruGetLastError    *syscall.Proc
}

func New(dllName string) (*PassThru, error) {
	dll, err := syscall.LoadDLL(dllName)
	if err != nil {
		return nil, err
	}
	pt := &PassThru{dll: dll}
	for _, sym := range []struct {
		name string
		proc **syscall.Proc
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
		proc, err := dll.FindProc(sym.name)
		if err != nil {
			dll.Release()
			return nil, fmt.Errorf("%s: %w", dllName, err)
		}
		*sym.proc = proc
	}
	return pt, nil
}

// Close releases the DLL.
func (j *PassThru) Close() error {
	return j.dll.Release()
}

// PassThruOpen long PassThruOpen(void* pName, unsigned long *pDeviceID);
func (j *PassThru) PassThruOpen(deviceName string, pDeviceID *uint32) error {
	var pName unsafe.Pointer
	if deviceName != "" {
		b, err := syscall.BytePtrFromString(deviceName)
		if err != nil {
			return err
		}
		pName = unsafe.Pointer(b)
	}
	ret, _, _ := j.passThruOpen.Call(
		uintptr(pName),
		uintptr(unsafe.Pointer(pDeviceID)),
	)
	return CheckError(uint32(ret))
}

// PassThruClose long PassThruClose(unsigned long DeviceID);
func (j *PassThru) PassThruClose(deviceID uint32) error {
	ret, _, _ := j.passThruClose.Call(
		uintptr(deviceID),
	)
	return CheckError(uint32(ret))
}

// PassThruConnect long PassThruConnect(unsigned long DeviceID, unsigned long ProtocolID, unsigned long Flags, unsigned long BaudRate, unsigned long *pChannelID);
func (j *PassThru) PassThruConnect(deviceID uint32, protocolID uint32, flags uint32, baudRate uint32, pChannelID *uint32) error {
	ret, _, _ := j.passThruConnect.Call(
		uintptr(deviceID),
		uintptr(protocolID),
		uintptr(flags),
		uintptr(baudRate),
		uintptr(unsafe.Pointer(pChannelID)),
	)
	return CheckError(uint32(ret))
}

// PassThruDisconnect long PassThruDisconnect(unsigned long ChannelID);
func (j *PassThru) PassThruDisconnect(channelID uint32) error {
	ret, _, _ := j.passThruDisconnect.Call(
		uintptr(channelID),
	)
	return CheckError(uint32(ret))
}

// PassThruReadMsg reads a single message, returning how many were read.
func (j *PassThru) PassThruReadMsg(channelID uint32, pMsg *PassThruMsg, timeout uint32) (uint32, error) {
	pNumMsgs := uint32(1)
	ret, _, _ := j.passThruReadMsgs.Call(
		uintptr(channelID),
		uintptr(unsafe.Pointer(pMsg)),
		uintptr(unsafe.Pointer(&pNumMsgs)),
		uintptr(timeout),
	)
	if err := CheckError(uint32(ret)); err != nil {
		if str, err2 := j.PassThruGetLastError(); err2 == nil && str != "" {
			return 0, fmt.Errorf("%s: %w", str, err)
		}
		return 0, err
	}
	return pNumMsgs, nil
}

// PassThruReadMsgs long PassThruReadMsgs(unsigned long ChannelID, PassThruMsg *pMsg, unsigned long *pNumMsgs, unsigned long Timeout);
func (j *PassThru) PassThruReadMsgs(channelID uint32, pMsg *PassThruMsg, pNumMsgs *uint32, timeout uint32) error {
	ret, _, _ := j.passThruReadMsgs.Call(
		uintptr(channelID),
		uintptr(unsafe.Pointer(pMsg)),
		uintptr(unsafe.Pointer(pNumMsgs)),
		uintptr(timeout),
	)
	if err := CheckError(uint32(ret)); err != nil {
		if str, err2 := j.PassThruGetLastError(); err2 == nil && str != "" {
			return fmt.Errorf("%s: %w", str, err)
		}
		return err
	}
	return nil
}

// PassThruWriteMsgs long PassThruWriteMsgs(unsigned long ChannelID, PassThruMsg *pMsg, unsigned long *pNumMsgs, unsigned long Timeout);
func (j *PassThru) PassThruWriteMsgs(channelID uint32, pMsg *PassThruMsg, pNumMsgs *uint32, timeout uint32) error {
	ret, _, _ := j.passThruWriteMsgs.Call(
		uintptr(channelID),
		uintptr(unsafe.Pointer(pMsg)),
		uintptr(unsafe.Pointer(pNumMsgs)),
		uintptr(timeout),
	)
	return CheckError(uint32(ret))
}

// PassThruStartMsgFilter long PassThruStartMsgFilter(unsigned long ChannelID, unsigned long FilterType, PassThruMsg *pMaskMsg, PassThruMsg *pPatternMsg, PassThruMsg *pFlowControlMsg, unsigned long *pMsgID);
func (j *PassThru) PassThruStartMsgFilter(channelID uint32, filterType uint32, pMaskMsg, pPatternMsg, pFlowControlMsg *PassThruMsg, pMsgID *uint32) error {
	ret, _, _ := j.passThruStartMsgFilter.Call(
		uintptr(channelID),
		uintptr(filterType),
		uintptr(unsafe.Pointer(pMaskMsg)),
		uintptr(unsafe.Pointer(pPatternMsg)),
		uintptr(unsafe.Pointer(pFlowControlMsg)),
		uintptr(unsafe.Pointer(pMsgID)),
	)
	return CheckError(uint32(ret))
}

// PassThruReadVersion long PassThruReadVersion(unsigned long DeviceID, char *pFirmwareVersion, char *pDllVersion, char *pApiVersion);
func (j *PassThru) PassThruReadVersion(deviceID uint32) (string, string, string, error) {
	var pFirmwareVersion [80]byte
	var pDllVersion [80]byte
	var pApiVersion [80]byte
	ret, _, _ := j.passThruReadVersionProc.Call(
		uintptr(deviceID),
		uintptr(unsafe.Pointer(&pFirmwareVersion)),
		uintptr(unsafe.Pointer(&pDllVersion)),
		uintptr(unsafe.Pointer(&pApiVersion)),
	)
	if err := CheckError(uint32(ret)); err != nil {
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
		ret, _, _ := j.passThruIoctl.Call(
			uintptr(handleID),
			uintptr(ioctlID),
			uintptr(unsafe.Pointer(opts[0].(*SCONFIG_LIST))),
			uintptr(0),
		)
		return CheckError(uint32(ret))
	case CLEAR_MSG_FILTERS, CLEAR_RX_BUFFER, CLEAR_TX_BUFFER, CLEAR_PERIODIC_MSGS:
		ret, _, _ := j.passThruIoctl.Call(
			uintptr(handleID),
			uintptr(ioctlID),
			uintptr(0),
			uintptr(0),
		)
		return CheckError(uint32(ret))
	case FAST_INIT:
		ret, _, _ := j.passThruIoctl.Call(
			uintptr(handleID),
			uintptr(ioctlID),
			uintptr(unsafe.Pointer(opts[0].(*PassThruMsg))),
			uintptr(unsafe.Pointer(opts[1].(*PassThruMsg))),
		)
		return CheckError(uint32(ret))
	}
	return ErrNotSupported
}

// PassThruGetLastError long PassThruGetLastError(char *pErrorDescription);
func (j *PassThru) PassThruGetLastError() (string, error) {
	var pErrorDescription [80]byte
	ret, _, _ := j.passThruGetLastError.Call(
		uintptr(unsafe.Pointer(&pErrorDescription)),
	)
	return string(bytes.Trim(pErrorDescription[:], "\x00")), CheckError(uint32(ret))
}
