package passthru

// Protocol IDs, SAE J2534-1 v04.04
const (
	J1850VPW     = 0x01
	J1850PWM     = 0x02
	ISO9141      = 0x03
	ISO14230     = 0x04
	CAN          = 0x05
	ISO15765     = 0x06
	SCI_A_ENGINE = 0x07
	SCI_A_TRANS  = 0x08
	SCI_B_ENGINE = 0x09
	SCI_B_TRANS  = 0x0A
)

// Pin-switched protocol IDs, SAE J2534-2
const (
	CAN_PS      = 0x8004
	ISO15765_PS = 0x8005
	SW_CAN_PS   = 0x8008
)

// Connect flags
const (
	CAN_29BIT_ID        = 0x0100
	ISO9141_NO_CHECKSUM = 0x0200
	CAN_ID_BOTH         = 0x0800
)

// TxFlags
const (
	ISO15765_FRAME_PAD = 0x0040
	ISO15765_ADDR_TYPE = 0x0080
	SW_CAN_HV_TX       = 0x0400
)

// RxStatus bits
const (
	TX_MSG_TYPE            = 0x0001
	START_OF_MESSAGE       = 0x0002
	RX_BREAK               = 0x0004
	TX_INDICATION          = 0x0008
	ISO15765_PADDING_ERROR = 0x0010
	ISO15765_EXT_ADDR      = 0x0080
)

// Filter types
const (
	PASS_FILTER         = 0x01
	BLOCK_FILTER        = 0x02
	FLOW_CONTROL_FILTER = 0x03
)

// Ioctl IDs
const (
	GET_CONFIG          = 0x01
	SET_CONFIG          = 0x02
	READ_VBATT          = 0x03
	FIVE_BAUD_INIT      = 0x04
	FAST_INIT           = 0x05
	CLEAR_TX_BUFFER     = 0x07
	CLEAR_RX_BUFFER     = 0x08
	CLEAR_PERIODIC_MSGS = 0x09
	CLEAR_MSG_FILTERS   = 0x0A
	READ_PROG_VOLTAGE   = 0x0E
)

// Config parameters for SET_CONFIG/GET_CONFIG
const (
	DATA_RATE    = 0x01
	LOOPBACK     = 0x03
	NODE_ADDRESS = 0x04
	NETWORK_LINE = 0x05
	J1962_PINS   = 0x8037
)

// Return codes
const (
	STATUS_NOERROR            = 0x00
	ERR_NOT_SUPPORTED         = 0x01
	ERR_INVALID_CHANNEL_ID    = 0x02
	ERR_INVALID_PROTOCOL_ID   = 0x03
	ERR_NULL_PARAMETER        = 0x04
	ERR_INVALID_IOCTL_VALUE   = 0x05
	ERR_INVALID_FLAGS         = 0x06
	ERR_FAILED                = 0x07
	ERR_DEVICE_NOT_CONNECTED  = 0x08
	ERR_TIMEOUT               = 0x09
	ERR_INVALID_MSG           = 0x0A
	ERR_INVALID_TIME_INTERVAL = 0x0B
	ERR_EXCEEDED_LIMIT        = 0x0C
	ERR_INVALID_MSG_ID        = 0x0D
	ERR_DEVICE_IN_USE         = 0x0E
	ERR_INVALID_IOCTL_ID      = 0x0F
	ERR_BUFFER_EMPTY          = 0x10
	ERR_BUFFER_FULL           = 0x11
	ERR_BUFFER_OVERFLOW       = 0x12
	ERR_PIN_INVALID           = 0x13
	ERR_CHANNEL_IN_USE        = 0x14
	ERR_MSG_PROTOCOL_ID       = 0x15
	ERR_INVALID_FILTER_ID     = 0x16
	ERR_NO_FLOW_CONTROL       = 0x17
	ERR_NOT_UNIQUE            = 0x18
	ERR_INVALID_BAUDRATE      = 0x19
	ERR_INVALID_DEVICE_ID     = 0x1A
)

// PassThruMsg mirrors the PASSTHRU_MSG structure from J2534-1 v04.04. For
// CAN protocols Data starts with the 4 byte big endian arbitration ID
// followed by the payload.
type PassThruMsg struct {
	ProtocolID     uint32
	RxStatus       uint32
	TxFlags        uint32
	Timestamp      uint32
	DataSize       uint32
	ExtraDataIndex uint32
	Data           [4128]byte
}

type SCONFIG struct {
	Parameter uint32
	Value     uint32
}

type SCONFIG_LIST struct {
	NumOfParams uint32
	ConfigPtr   *SCONFIG
}

type J2534DLL struct {
	Name            string
	FunctionLibrary string
	Capabilities    Capabilities
}

type Capabilities struct {
	CAN      bool
	CANPS    bool
	SWCANPS  bool
	ISO15765 bool
	ISO9141  bool
	ISO14230 bool
}
