package passthru

import (
	"golang.org/x/sys/windows/registry"
)

const passThruKey = `SOFTWARE\PassThruSupport.04.04`

// FindDLLs enumerates the J2534 libraries installed on this machine from the
// PassThruSupport registry tree.
func FindDLLs() (prefix string, dlls []J2534DLL) {
	prefix = "x64 "
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, passThruKey, registry.QUERY_VALUE)
	if err != nil {
		return
	}
	ki, err := k.Stat()
	if err != nil {
		k.Close()
		return
	}
	if err := k.Close(); err != nil {
		return
	}

	k2, err := registry.OpenKey(registry.LOCAL_MACHINE, passThruKey, registry.ENUMERATE_SUB_KEYS)
	if err != nil {
		return
	}
	defer k2.Close()

	adapters, err := k2.ReadSubKeyNames(int(ki.SubKeyCount))
	if err != nil {
		return
	}

	for _, adapter := range adapters {
		k3, err := registry.OpenKey(registry.LOCAL_MACHINE, passThruKey+`\`+adapter, registry.QUERY_VALUE)
		if err != nil {
			continue
		}
		name, _, err := k3.GetStringValue("Name")
		if err != nil {
			k3.Close()
			continue
		}
		functionLibrary, _, err := k3.GetStringValue("FunctionLibrary")
		if err != nil {
			k3.Close()
			continue
		}
		var capabilities Capabilities
		if val, _, err := k3.GetIntegerValue("CAN"); err == nil {
			capabilities.CAN = val == 1
		}
		if val, _, err := k3.GetIntegerValue("CAN_PS"); err == nil {
			capabilities.CANPS = val == 1
		}
		if val, _, err := k3.GetIntegerValue("SW_CAN_PS"); err == nil {
			capabilities.SWCANPS = val == 1
		}
		if val, _, err := k3.GetIntegerValue("ISO15765"); err == nil {
			capabilities.ISO15765 = val == 1
		}
		if val, _, err := k3.GetIntegerValue("ISO9141"); err == nil {
			capabilities.ISO9141 = val == 1
		}
		if val, _, err := k3.GetIntegerValue("ISO14230"); err == nil {
			capabilities.ISO14230 = val == 1
		}
		k3.Close()
		dlls = append(dlls, J2534DLL{Name: name, FunctionLibrary: functionLibrary, Capabilities: capabilities})
	}
	return
}
