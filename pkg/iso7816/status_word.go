package iso7816

import "fmt"

// StatusWord is the SW1-SW2 trailer of a response (ISO 7816-4 Section 5.6,
// ETSI TS 102 221 Section 10.2).
//
// Some ranges carry a value in SW2:
//   - '61XX': XX bytes wait for GET RESPONSE;
//   - '6CXX': wrong Le, XX is the right one;
//   - '62XX' and '64XX' with XX in 02..80: triggering by the card;
//   - '63CX': counter X, e.g. the verification tries left;
//   - '91XX': a proactive command of XX bytes is pending (UICC).
type StatusWord uint16

// Status words the decoders refer to by name.
const (
	SW_NO_ERROR             StatusWord = 0x9000
	SW_WARN_EOF_REACHED     StatusWord = 0x6282
	SW_ERR_WRONG_LENGTH     StatusWord = 0x6700
	SW_ERR_SECURITY_STATUS  StatusWord = 0x6982
	SW_ERR_FILE_NOT_FOUND   StatusWord = 0x6A82
	SW_ERR_RECORD_NOT_FOUND StatusWord = 0x6A83
	SW_ERR_INS_INVALID      StatusWord = 0x6D00
	SW_ERR_CLA_INVALID      StatusWord = 0x6E00
)

var statusWords = map[StatusWord]string{
	0x9000: "Normal ending of the command",
	0x9300: "SIM Application Toolkit is busy",

	0x6200: "No information given, state of non-volatile memory unchanged",
	0x6281: "Part of returned data may be corrupted",
	0x6282: "End of file or record reached before reading Ne bytes",
	0x6283: "Selected file deactivated",
	0x6284: "File control information not formatted",
	0x6285: "Selected file in termination state",
	0x6286: "No input data available from a sensor on the card",
	0x62F1: "More data available",
	0x62F2: "More data available and proactive command pending",
	0x62F3: "Response data available",

	0x6300: "No information given, state of non-volatile memory changed",
	0x6381: "File filled up by the last write",
	0x63F1: "More data expected",
	0x63F2: "More data expected and proactive command pending",

	0x6400: "Execution error, state of non-volatile memory unchanged",
	0x6401: "Immediate response required by the card",
	0x6500: "Execution error, state of non-volatile memory changed",
	0x6581: "Memory failure",
	0x6600: "Security-related issue",

	0x6700: "Wrong length",
	0x6800: "Functions in CLA not supported",
	0x6881: "Logical channel not supported",
	0x6882: "Secure messaging not supported",
	0x6883: "Last command of the chain expected",
	0x6884: "Command chaining not supported",

	0x6900: "Command not allowed",
	0x6981: "Command incompatible with file structure",
	0x6982: "Security status not satisfied",
	0x6983: "Authentication or verification method blocked",
	0x6984: "Reference data not usable",
	0x6985: "Conditions of use not satisfied",
	0x6986: "Command not allowed (no current EF)",
	0x6987: "Expected secure messaging data objects missing",
	0x6988: "Incorrect secure messaging data objects",
	0x6989: "Secure channel security not satisfied",

	0x6A00: "Wrong parameters P1-P2",
	0x6A80: "Incorrect parameters in the command data field",
	0x6A81: "Function not supported",
	0x6A82: "File or application not found",
	0x6A83: "Record not found",
	0x6A84: "Not enough memory space in the file",
	0x6A85: "Nc inconsistent with TLV structure",
	0x6A86: "Incorrect parameters P1-P2",
	0x6A87: "Nc inconsistent with parameters P1-P2",
	0x6A88: "Referenced data or reference data not found",
	0x6A89: "File already exists",
	0x6A8A: "DF name already exists",

	0x6B00: "Wrong parameter(s) P1-P2",
	0x6D00: "Instruction code not supported or invalid",
	0x6E00: "Class not supported",
	0x6F00: "Technical problem, no precise diagnosis",

	0x9240: "Memory problem",
	0x9862: "Authentication error, incorrect MAC",
	0x9864: "Authentication error, security context not supported",
	0x9865: "Key freshness failure",
	0x9866: "Authentication error, no memory space available",
	0x9867: "Authentication error, no memory space available in EF MUK",
}

// categories describe a status word by its SW1 when it has no entry of its
// own.
var categories = map[byte]string{
	0x62: "Warning, state of non-volatile memory unchanged",
	0x63: "Warning, state of non-volatile memory changed",
	0x64: "Execution error, state of non-volatile memory unchanged",
	0x65: "Execution error, state of non-volatile memory changed",
	0x66: "Execution error, security-related",
	0x68: "Checking error, functions in CLA not supported",
	0x69: "Checking error, command not allowed",
	0x6A: "Checking error, wrong parameters P1-P2",
	0x92: "Command successful after internal retries",
	0x98: "Security management",
}

// NewStatusWord builds a StatusWord from SW1 and SW2.
func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(uint16(sw1)<<8 | uint16(sw2))
}

func (sw StatusWord) SW1() byte { return byte(sw >> 8) }
func (sw StatusWord) SW2() byte { return byte(sw) }

// IsTriggeringByCard reports '62XX' and '64XX' with XX in 02..80.
func (sw StatusWord) IsTriggeringByCard() bool {
	sw1, sw2 := sw.SW1(), sw.SW2()
	return (sw1 == 0x62 || sw1 == 0x64) && sw2 >= 0x02 && sw2 <= 0x80
}

// IsCounter reports '63CX'.
func (sw StatusWord) IsCounter() bool {
	return sw.SW1() == 0x63 && sw.SW2()&0xF0 == 0xC0
}

// IsSuccess reports '9000' and '61XX'.
func (sw StatusWord) IsSuccess() bool {
	return sw == SW_NO_ERROR || sw.SW1() == 0x61
}

// IsWarning reports '62XX' and '63XX'.
func (sw StatusWord) IsWarning() bool {
	sw1 := sw.SW1()
	return sw1 == 0x62 || sw1 == 0x63
}

// IsError reports the execution and checking errors, '64XX' to '6FXX'.
func (sw StatusWord) IsError() bool {
	sw1 := sw.SW1()
	return sw1 >= 0x64 && sw1 <= 0x6F
}

// String returns the description of the status word, or its category.
func (sw StatusWord) String() string {
	sw1, sw2 := sw.SW1(), sw.SW2()
	switch {
	case sw1 == 0x61:
		return fmt.Sprintf("Process completed, %d bytes available", sw2)
	case sw1 == 0x6C:
		return fmt.Sprintf("Wrong length, correct Le is %d", sw2)
	case sw1 == 0x91:
		return fmt.Sprintf("Normal ending, proactive command of %d bytes pending", sw2)
	case sw.IsCounter():
		return fmt.Sprintf("Verification failed, %d tries left", sw2&0x0F)
	case sw.IsTriggeringByCard() && sw1 == 0x62:
		return fmt.Sprintf("Triggering by the card, %d bytes to query", sw2)
	case sw.IsTriggeringByCard():
		return fmt.Sprintf("Execution aborted, triggering by the card, %d bytes to query", sw2)
	}
	if desc, ok := statusWords[sw]; ok {
		return desc
	}
	if desc, ok := categories[sw1]; ok {
		return desc
	}
	return "Unknown status"
}

// Verbose prefixes String with the status word in hex.
func (sw StatusWord) Verbose() string {
	return fmt.Sprintf("[%04X] %s", uint16(sw), sw)
}
