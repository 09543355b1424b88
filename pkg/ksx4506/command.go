package ksx4506

import "fmt"

// Command is the command byte of a frame.
type Command uint8

// Request commands. Responses set bit 7.
const (
	CmdStatusReq         Command = 0x01
	CmdCharacteristicReq Command = 0x0F
	CmdSingleControlReq  Command = 0x41
	CmdGroupControlReq   Command = 0x42
	CmdAlarmOffReq       Command = 0x43

	CmdStatusRsp         Command = 0x81
	CmdCharacteristicRsp Command = 0x8F
	CmdSingleControlRsp  Command = 0xC1
	CmdAlarmOffRsp       Command = 0xC3
)

const responseBit = 0x80

// IsResponse reports whether c is a response command.
func (c Command) IsResponse() bool { return c&responseBit != 0 }

// Response returns the response command for a request. Group control has no
// response and returns false.
func (c Command) Response() (Command, bool) {
	if c.IsResponse() || c == CmdGroupControlReq {
		return 0, false
	}
	return c | responseBit, true
}

// Request returns the request command a response answers.
func (c Command) Request() Command { return c &^ responseBit }

func (c Command) String() string {
	switch c {
	case CmdStatusReq:
		return "status_req"
	case CmdCharacteristicReq:
		return "characteristic_req"
	case CmdSingleControlReq:
		return "single_control_req"
	case CmdGroupControlReq:
		return "group_control_req"
	case CmdAlarmOffReq:
		return "alarm_off_req"
	case CmdStatusRsp:
		return "status_rsp"
	case CmdCharacteristicRsp:
		return "characteristic_rsp"
	case CmdSingleControlRsp:
		return "single_control_rsp"
	case CmdAlarmOffRsp:
		return "alarm_off_rsp"
	default:
		return fmt.Sprintf("cmd_%02x", uint8(c))
	}
}
