/*
Package iso7816 models the interindustry layer of smart card exchanges: the
command and response APDUs of ISO/IEC 7816-3 and 7816-4, their class,
instruction and status bytes, the SELECT and READ RECORD parameters, and
the templates a card returns to SELECT.

# Status words

Every response ends with SW1 SW2. '9000' is the normal ending. '61XX'
announces XX bytes to fetch with GET RESPONSE and '6CXX' asks for the
command again with Le = XX. StatusWord classifies and describes the rest,
including the UICC codes of ETSI TS 102 221.

# Transport

Client drives a Transmitter such as a PC/SC card and performs the T=0
procedures itself. Every transaction of one logical command is kept in the
returned Trace.

	cls, _ := iso7816.NewClass(0x00)
	trace, err := iso7816.NewClient(card).Send(iso7816.SelectByAID(cls, aid))
	if err != nil {
		return err
	}
	if !trace.IsSuccess() {
		return fmt.Errorf("select: %s", trace.Last().Response.Status.Verbose())
	}
	r, err := iso7816.ParseSelectResponse(trace.Data(), iso7816.ReturnFCI)
	if err != nil {
		return err
	}
	fmt.Println(r.Label())
*/
package iso7816
